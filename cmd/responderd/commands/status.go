package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent-pilot/responderd/internal/client"
)

var statusCmd = &cobra.Command{
	Use:   "status [session]",
	Short: "Show daemon status, monitored sessions, and pending wakes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			return printSessionStatus(cmd, c, args[0])
		}
		st, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("responderd %s\n", st.Version)

		if len(st.Sessions) == 0 {
			fmt.Println("no sessions monitored")
		} else {
			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tPRESET\tUP\tAUDIT")
			for _, s := range st.Sessions {
				auditState := "ok"
				if s.Degraded {
					auditState = "degraded"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					s.Session, s.Preset,
					time.Since(s.Started).Round(time.Second), auditState)
			}
			w.Flush()
		}

		for _, wk := range st.Wakes {
			fmt.Printf("wake %s at %s\n", wk.Session, wk.FireAt.Local().Format(time.RFC3339))
		}

		if rl := st.RateLimit; rl != nil && rl.State != "idle" {
			fmt.Printf("rate limit: %s", rl.State)
			if !rl.ResetAt.IsZero() {
				fmt.Printf(", resumes %s", rl.ResetAt.Local().Format(time.Kitchen))
			}
			fmt.Println()
		}
		return nil
	},
}

func printSessionStatus(cmd *cobra.Command, c *client.Client, session string) error {
	d, err := c.Session(cmd.Context(), session)
	if err != nil {
		return err
	}

	fmt.Printf("%s  preset=%s  up=%s\n", d.Session, d.Preset, time.Since(d.Started).Round(time.Second))
	if d.Degraded {
		fmt.Println("audit trail degraded: recent decisions may be missing")
	}
	if d.Wake != nil {
		fmt.Printf("wake at %s\n", d.Wake.FireAt.Local().Format(time.RFC3339))
	}
	for _, e := range d.Recent {
		fmt.Printf("%s  %-8s %-20s %s\n",
			e.Timestamp.Local().Format(time.TimeOnly), e.Action, e.Category, e.Reason)
	}
	return nil
}
