package cli

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/kaiwa/internal/client"
	"github.com/raphaelgruber/kaiwa/internal/parser"
	"github.com/spf13/cobra"
)

var importTitle string

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a Markdown transcript as a new conversation",
	Long: `Import a transcript written by 'kaiwa export' as a new conversation.

Messages are copied as text. Image attachments are listed in transcripts
without data and are not restored.

Examples:
  kaiwa import trip.md
  kaiwa import trip.md --title "Kyoto (restored)"`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importTitle, "title", "t", "", "title for the new conversation (default: transcript title)")
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	transcript, err := parser.ParseTranscript(string(data))
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	title := importTitle
	if title == "" {
		title = transcript.Title
	}

	ctx := cmd.Context()
	conv, err := apiClient.CreateConversation(ctx, title)
	if err != nil {
		return err
	}

	msgs := transcript.Messages()
	skipped := 0
	for _, turn := range transcript.Turns {
		skipped += len(turn.Images)
	}
	logger.Debug("importing transcript", "file", args[0], "messages", len(msgs), "images_skipped", skipped)

	if _, err := apiClient.UpdateConversation(ctx, conv.ID, client.UpdateRequest{Messages: &msgs}); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d messages into %s (%s)\n", len(msgs), conv.Title, conv.ID)
	if skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipped %d image attachments\n", skipped)
	}
	return nil
}
