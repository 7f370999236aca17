package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/raphaelgruber/kaiwa/internal/models"
	"github.com/raphaelgruber/kaiwa/internal/parser"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a conversation to Markdown",
	Long: `Export a conversation as a Markdown transcript for backup or sharing.

Metadata is written as YAML frontmatter. Attached images are listed by name
and media type; the stored copies hold no image data.

Examples:
  kaiwa export 1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed
  kaiwa export 1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed -o trip.md`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	conv, err := apiClient.GetConversation(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	content, err := renderMarkdown(conv)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), content)
		return err
	}
	if err := os.WriteFile(exportOutput, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", exportOutput, err)
	}
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported: %s\n", exportOutput)
	}
	return nil
}

// renderMarkdown renders a conversation as Markdown with YAML frontmatter.
func renderMarkdown(conv *models.Conversation) (string, error) {
	fm, err := yaml.Marshal(parser.Frontmatter{
		ID:        conv.ID,
		Title:     conv.Title,
		Messages:  len(conv.Messages),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n", conv.Title)

	for _, m := range conv.Messages {
		speaker := parser.UserHeading
		if m.Role == models.RoleAssistant {
			speaker = parser.AssistantHeading
		}
		fmt.Fprintf(&b, "\n## %s\n\n", speaker)
		for _, img := range m.Images {
			fmt.Fprintf(&b, "- image: %s\n", imageLabel(img))
		}
		if len(m.Images) > 0 {
			b.WriteString("\n")
		}
		if m.Content != "" {
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
