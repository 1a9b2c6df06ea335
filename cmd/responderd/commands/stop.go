package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <session>",
	Short: "Stop monitoring a tmux session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		if err := c.StopSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("stopped %s\n", args[0])
		return nil
	},
}
