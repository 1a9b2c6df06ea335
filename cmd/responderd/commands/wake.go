package commands

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	wakeAt   string
	wakeIn   time.Duration
	wakeNote string
)

var wakeCmd = &cobra.Command{
	Use:   "wake <session>",
	Short: "Schedule a one-shot nudge for an idle session",
	Long: `Schedule a wake that types a short message into the session at the
given time. Arming a second wake for the same session replaces the first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}

		var fireAt time.Time
		if wakeAt != "" {
			fireAt, err = time.Parse(time.RFC3339, wakeAt)
			if err != nil {
				return fmt.Errorf("--at must be RFC3339: %w", err)
			}
		} else if wakeIn <= 0 {
			return errors.New("one of --at or --in is required")
		}

		w, err := c.ArmWake(cmd.Context(), args[0], fireAt, wakeIn, wakeNote)
		if err != nil {
			return err
		}
		fmt.Printf("wake %s armed for %s\n", w.Session, w.FireAt.Local().Format(time.RFC3339))
		return nil
	},
}

var wakeCancelCmd = &cobra.Command{
	Use:   "cancel <session>",
	Short: "Cancel a session's pending wake",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		if err := c.CancelWake(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("wake %s cancelled\n", args[0])
		return nil
	},
}

var wakeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending wakes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		wakes, err := c.ListWakes(cmd.Context())
		if err != nil {
			return err
		}
		if len(wakes) == 0 {
			fmt.Println("no pending wakes")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tFIRES AT\tNOTE")
		for _, wk := range wakes {
			fmt.Fprintf(w, "%s\t%s\t%s\n", wk.Session, wk.FireAt.Local().Format(time.RFC3339), wk.Note)
		}
		return w.Flush()
	},
}

func init() {
	wakeCmd.Flags().StringVar(&wakeAt, "at", "", "Fire time, RFC3339")
	wakeCmd.Flags().DurationVar(&wakeIn, "in", 0, "Fire after this duration, e.g. 25m")
	wakeCmd.Flags().StringVar(&wakeNote, "note", "", "Text to type into the session (default \"continue\")")
	wakeCmd.AddCommand(wakeCancelCmd)
	wakeCmd.AddCommand(wakeListCmd)
}
