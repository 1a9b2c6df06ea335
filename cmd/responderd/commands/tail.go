package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent-pilot/responderd/internal/client"
)

var tailJSON bool

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream decisions as they happen",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		return c.TailEvents(cmd.Context(), func(ev client.Event) {
			if tailJSON {
				enc.Encode(ev)
				return
			}
			fmt.Printf("%s  %-8s %-20s %s  %s\n",
				ev.DecidedAt.Local().Format(time.TimeOnly),
				ev.Action, ev.Category, ev.Target, ev.Reason)
		})
	},
}

func init() {
	tailCmd.Flags().BoolVar(&tailJSON, "json", false, "Emit raw JSON frames")
}
