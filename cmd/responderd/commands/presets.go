package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the daemon's loaded risk presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		presets, err := c.Presets(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PRESET\tTIER\tINTERVAL\tDELAY\tALLOWS")
		for _, p := range presets {
			allows := 0
			for _, action := range p.Table {
				if action == "allow" {
					allows++
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\n",
				p.Name, p.Tier, p.CheckInterval, p.ResponseDelay, allows, len(p.Table))
		}
		return w.Flush()
	},
}
