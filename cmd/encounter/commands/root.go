package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blockberries/encounter"
	"github.com/blockberries/encounter/pkg/store"
)

const storeFile = "encounter.json"

var (
	home       string
	configPath string
	profile    string
	logLevel   string
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "encounter",
		Short:         "Meet nearby peers over an encrypted local session",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".encounter")
			}
			return os.MkdirAll(home, 0o700)
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "state dir (default ~/.encounter)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "tunables file (TOML)")
	root.PersistentFlags().StringVar(&profile, "profile", "", "tunables profile: production or development")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(runCmd(), idCmd(), blockCmd(), unblockCmd(), blockedCmd(), historyCmd())
	return root
}

// loadTunables resolves --config and --profile. A config file wins over a
// bare profile; with neither, the production set is used.
func loadTunables() (encounter.Tunables, error) {
	if configPath != "" {
		return encounter.LoadTunables(configPath)
	}
	if profile != "" {
		return encounter.Profile(profile)
	}
	return encounter.Production(), nil
}

func openStore(opts ...store.Option) (*store.Book, error) {
	book, err := store.Open(filepath.Join(home, storeFile), opts...)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return book, nil
}
