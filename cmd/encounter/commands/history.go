package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show ended sessions and meaningful-interaction points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := openStore()
			if err != nil {
				return err
			}
			defer book.Close()

			out := cmd.OutOrStdout()
			sessions := book.Sessions()
			if limit > 0 && len(sessions) > limit {
				sessions = sessions[len(sessions)-limit:]
			}

			fmt.Fprintf(out, "Points: %d\n", book.Points())
			if len(sessions) == 0 {
				fmt.Fprintln(out, "no sessions yet")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ENDED\tPEER\tMEANINGFUL\tSESSION")
			for i := len(sessions) - 1; i >= 0; i-- {
				s := sessions[i]
				meaningful := "no"
				if s.Meaningful {
					meaningful = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.EndedAt.Local().Format(time.DateTime), s.Peer, meaningful, s.SessionID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "show at most this many sessions (0 for all)")
	return cmd
}
