package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/raphaelgruber/kaiwa/internal/chat"
	"github.com/raphaelgruber/kaiwa/internal/conversations"
	"github.com/raphaelgruber/kaiwa/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatConversationID string
	chatImages         []string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the assistant",
	Long: `Chat with the assistant.

With a message, or when output is not a terminal, one turn is sent and the
reply is printed as it streams. A message can also be piped on stdin.
Otherwise an interactive session opens.

Examples:
  kaiwa chat
  kaiwa chat "What should I see in Kyoto?"
  kaiwa chat -c 1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed "And in Nara?"
  kaiwa chat -i photo.jpg "What is in this picture?"
  echo "Summarize our plan" | kaiwa chat -c 1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversationID, "conversation", "c", "", "continue an existing conversation")
	chatCmd.Flags().StringArrayVarP(&chatImages, "image", "i", nil, "attach an image (jpeg, png, gif or webp); repeatable")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	images, err := loadImages(chatImages)
	if err != nil {
		return err
	}

	interactive := len(args) == 0 &&
		term.IsTerminal(int(os.Stdin.Fd())) &&
		term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		return runChatTUI(ctx, chatConversationID, images)
	}

	message := ""
	if len(args) == 1 {
		message = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		message = strings.TrimSpace(string(data))
	}
	if message == "" && len(images) == 0 {
		return fmt.Errorf("nothing to send: give a message or an image")
	}

	return runPlainChat(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), chatConversationID, message, images)
}

// newSession wires a chat controller to the list controller. With an id the
// conversation is loaded first and its history becomes the context.
func newSession(ctx context.Context, id string, onChange func(chat.State), onCreated func(string)) (*chat.Controller, *conversations.Controller, error) {
	list := conversations.New(ctx, apiClient, logger, nil)

	var initial []models.Message
	if id != "" {
		conv, err := list.Select(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("load conversation: %w", err)
		}
		initial = conv.Messages
	}

	ctrl := chat.New(chat.Options{
		ConversationID:        id,
		InitialMessages:       initial,
		API:                   apiClient,
		Conversations:         list,
		OnConversationCreated: onCreated,
		OnChange:              onChange,
		Logger:                logger,
	})
	return ctrl, list, nil
}

// streamPrinter writes the growing assistant reply to w, one suffix at a time.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	id      string
	printed int
}

func (p *streamPrinter) onChange(s chat.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(s.Messages) == 0 {
		return
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != models.RoleAssistant {
		return
	}
	if last.ID != p.id {
		p.id = last.ID
		p.printed = 0
	}
	if len(last.Content) > p.printed {
		fmt.Fprint(p.w, last.Content[p.printed:])
		p.printed = len(last.Content)
	}
}

func runPlainChat(ctx context.Context, out, errOut io.Writer, id, message string, images []models.ImageAttachment) error {
	printer := &streamPrinter{w: out}
	onCreated := func(newID string) {
		fmt.Fprintf(errOut, "%s\n", defaultTheme.hintStyle().Render("conversation "+newID))
	}

	ctrl, _, err := newSession(ctx, id, printer.onChange, onCreated)
	if err != nil {
		return err
	}

	err = ctrl.SendMessage(ctx, message, images)
	fmt.Fprintln(out)
	if err != nil {
		logger.Debug("send failed", "error", err)
		return errors.New(chat.SendFailedMessage)
	}
	return nil
}

// loadImages reads image files and encodes them as attachments. The media
// type is sniffed from the content, not the extension.
func loadImages(paths []string) ([]models.ImageAttachment, error) {
	var images []models.ImageAttachment
	for _, path := range paths {
		img, err := loadImage(path)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func loadImage(path string) (models.ImageAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ImageAttachment{}, fmt.Errorf("read image: %w", err)
	}

	mediaType := models.MediaType(strings.SplitN(http.DetectContentType(data), ";", 2)[0])
	if !mediaType.Valid() {
		return models.ImageAttachment{}, fmt.Errorf("%s: unsupported image type %s (want jpeg, png, gif or webp)", path, mediaType)
	}

	return models.ImageAttachment{
		ID:        uuid.NewString(),
		Type:      models.ImageType,
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
		Name:      filepath.Base(path),
	}, nil
}
