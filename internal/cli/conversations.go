package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/raphaelgruber/kaiwa/internal/client"
	"github.com/raphaelgruber/kaiwa/internal/conversations"
	"github.com/raphaelgruber/kaiwa/internal/models"
	"github.com/spf13/cobra"
)

var deleteForce bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var newCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create an empty conversation",
	Long: `Create an empty conversation.

Without a title the server names it "New Conversation".

Examples:
  kaiwa new
  kaiwa new "Trip to Kyoto"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNew,
}

var renameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Long: `Delete a conversation and its messages.

Requires confirmation unless --force is used.

Examples:
  kaiwa delete 1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed
  kaiwa delete 1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runList(cmd *cobra.Command, args []string) error {
	items, err := apiClient.ListConversations(cmd.Context())
	if err != nil {
		return err
	}
	printList(cmd.OutOrStdout(), items, defaultTheme)
	return nil
}

func printList(w io.Writer, items []models.ConversationListItem, theme Theme) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}

	fmt.Fprintf(w, "Conversations (%d):\n\n", len(items))
	for _, it := range items {
		fmt.Fprintf(w, "- %s  %s\n", theme.titleStyle().Render(it.Title),
			theme.hintStyle().Render(it.UpdatedAt.Local().Format(time.DateTime)))
		if verbose {
			fmt.Fprintf(w, "  %s\n", it.ID)
		}
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	conv, err := apiClient.GetConversation(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printTranscript(cmd.OutOrStdout(), conv, defaultTheme)
	return nil
}

func printTranscript(w io.Writer, conv *models.Conversation, theme Theme) {
	fmt.Fprintln(w, theme.titleStyle().Render(conv.Title))
	if len(conv.Messages) == 0 {
		fmt.Fprintln(w, theme.hintStyle().Render("(no messages)"))
		return
	}
	for _, m := range conv.Messages {
		fmt.Fprintf(w, "\n%s\n", theme.roleLabel(m.Role == models.RoleAssistant))
		for _, img := range m.Images {
			fmt.Fprintln(w, theme.hintStyle().Render("[image] "+imageLabel(img)))
		}
		if m.Content != "" {
			fmt.Fprintln(w, m.Content)
		}
	}
}

func imageLabel(img models.ImageAttachment) string {
	if img.Name == "" {
		return string(img.MediaType)
	}
	return fmt.Sprintf("%s (%s)", img.Name, img.MediaType)
}

func runNew(cmd *cobra.Command, args []string) error {
	title := ""
	if len(args) == 1 {
		title = args[0]
	}
	conv, err := apiClient.CreateConversation(cmd.Context(), title)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s (%s)\n", conv.Title, conv.ID)
	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	title := strings.TrimSpace(args[1])
	if title == "" {
		return fmt.Errorf("title must not be empty")
	}
	conv, err := apiClient.UpdateConversation(cmd.Context(), args[0], client.UpdateRequest{Title: &title})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed: %s\n", conv.Title)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := cmd.Context()

	conv, err := apiClient.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	// Confirm deletion
	if !deleteForce {
		ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
			fmt.Sprintf("About to delete: %s (%d messages)", conv.Title, len(conv.Messages)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	list := conversations.New(ctx, apiClient, logger, nil)
	if err := list.Delete(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted: %s\n", conv.Title)
	return nil
}

// confirm asks a yes/no question and defaults to no.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintln(out, prompt)
	fmt.Fprint(out, "\nContinue? [y/N]: ")

	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read input: %w", err)
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

