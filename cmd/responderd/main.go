// Package main provides the entry point for the responderd daemon and CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/agent-pilot/responderd/cmd/responderd/commands"
	"github.com/agent-pilot/responderd/internal/client"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			os.Exit(apiErr.ExitCode())
		}
		os.Exit(1)
	}
}
