package commands

import (
	"fmt"

	qrterminal "github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
)

func idCmd() *cobra.Command {
	var qr bool
	cmd := &cobra.Command{
		Use:   "id",
		Short: "Print this device's peer ID and identity token",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadOrCreateIdentity(home)
			if err != nil {
				return err
			}
			pid, err := id.PeerID()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Peer ID: %s\n", pid)
			fmt.Fprintf(out, "Token:   %s\n", id.Token)
			if qr {
				qrterminal.GenerateWithConfig(pid.String(), qrterminal.Config{
					Level:     qrterminal.M,
					Writer:    out,
					BlackChar: qrterminal.BLACK,
					WhiteChar: qrterminal.WHITE,
					QuietZone: 1,
				})
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&qr, "qr", false, "also render the peer ID as a QR code")
	return cmd
}
