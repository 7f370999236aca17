// Package cli provides the command-line interface for kaiwa.
package cli

import (
	"log/slog"

	"github.com/raphaelgruber/kaiwa/internal/client"
	"github.com/raphaelgruber/kaiwa/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// Set up before every command
	apiClient *client.Client
	logger    *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kaiwa",
	Short: "Chat with an AI assistant from the terminal",
	Long: `Kaiwa is a chat client for the kaiwa server.

Conversations are stored on the server; replies stream in as they are
generated. Run 'kaiwa chat' for an interactive session.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		// The CLI never logs to a file; the server does.
		logger, _ = config.SetupLogger("", level)

		apiClient = client.New(serverURL)
		logger.Debug("using server", "url", apiClient.BaseURL())
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $KAIWA_SERVER_URL or http://localhost:8484)")

	// Add subcommands
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statsCmd)
}

