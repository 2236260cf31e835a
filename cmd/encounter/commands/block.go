package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func blockCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "block <token-or-peer-id>",
		Short: "Never match with this identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := openStore()
			if err != nil {
				return err
			}
			defer book.Close()

			if err := book.Block(args[0], reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "blocked %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "note stored with the entry")
	return cmd
}

func unblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <token-or-peer-id>",
		Short: "Remove an identity from the blocklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := openStore()
			if err != nil {
				return err
			}
			defer book.Close()

			if err := book.Unblock(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", args[0])
			return nil
		},
	}
}

func blockedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blocked",
		Short: "List blocked identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := openStore()
			if err != nil {
				return err
			}
			defer book.Close()

			entries := book.Blocked()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no blocked identities")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IDENTITY\tSINCE\tREASON")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Token, e.BlockedAt.Local().Format(time.DateTime), e.Reason)
			}
			return tw.Flush()
		},
	}
}
