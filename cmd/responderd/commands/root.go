// Package commands provides the CLI commands for responderd.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agent-pilot/responderd/internal/client"
	"github.com/agent-pilot/responderd/internal/config"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	configPath string
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:   "responderd",
	Short: "Auto-approval daemon for interactive agent prompts in tmux",
	Long: `responderd watches tmux sessions running interactive CLI agents,
classifies the confirmation prompts they raise, and answers them
according to a risk preset. Dangerous operations are always left for a
human.

Run 'responderd run' to start the daemon, then use 'start', 'stop',
'status', 'tail' and 'wake' to drive it.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "Daemon address (default from config)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("responderd %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(wakeCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd.Execute()
}

// apiClient builds a client for the configured daemon address.
func apiClient() (*client.Client, error) {
	addr := serverAddr
	if addr == "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		addr = cfg.Server.Listen
	}
	return client.New(addr), nil
}
