package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var startPreset string

var startCmd = &cobra.Command{
	Use:   "start <session>",
	Short: "Begin monitoring a tmux session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		st, err := c.StartSession(cmd.Context(), args[0], startPreset)
		if err != nil {
			return err
		}
		fmt.Printf("monitoring %s under %s\n", st.Session, st.Preset)
		return nil
	},
}

func init() {
	startCmd.Flags().StringVarP(&startPreset, "preset", "p", "conservative", "Risk preset to apply")
}
