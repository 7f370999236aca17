// Package chat drives a single conversation from the client side: it appends
// the user's turn, streams the assistant reply into a placeholder message and
// reports every state change.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/kaiwa/internal/models"
	"github.com/raphaelgruber/kaiwa/internal/sse"
)

// SendFailedMessage is the user-facing error of any failed turn.
const SendFailedMessage = "Failed to send message"

// ErrSendFailed wraps the cause of a failed turn.
var ErrSendFailed = errors.New("send message failed")

// ChatAPI starts a chat turn and returns its event stream.
type ChatAPI interface {
	Chat(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error)
}

// ConversationCreator creates the conversation a first message belongs to.
type ConversationCreator interface {
	Create(ctx context.Context, title string) (*models.Conversation, error)
}

// Options configures a Controller.
type Options struct {
	ConversationID  string
	InitialMessages []models.Message
	API             ChatAPI
	Conversations   ConversationCreator
	// OnConversationCreated is called with the id of a conversation created
	// for the first message.
	OnConversationCreated func(id string)
	// OnChange receives a copy of every new state, in order. It runs under
	// the controller's lock and must not call back into the Controller.
	OnChange func(State)
	Logger   *slog.Logger
}

// Controller owns the message list of one conversation.
type Controller struct {
	api       ChatAPI
	creator   ConversationCreator
	onCreated func(string)
	onChange  func(State)
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

// New creates a controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		api:       opts.API,
		creator:   opts.Conversations,
		onCreated: opts.OnConversationCreated,
		onChange:  opts.OnChange,
		logger:    logger,
	}
	c.state = reduce(State{ConversationID: opts.ConversationID}, messagesReset{messages: opts.InitialMessages})
	return c
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Controller) dispatch(a action) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = reduce(c.state, a)
	if c.onChange != nil {
		c.onChange(c.state.clone())
	}
	return c.state.clone()
}

// SendMessage runs one turn. Content may be empty when images are attached.
// On failure the placeholder is removed, the user message stays and
// State.Error is set to SendFailedMessage; the returned error wraps
// ErrSendFailed and the cause. Loading is reset on every path.
func (c *Controller) SendMessage(ctx context.Context, content string, images []models.ImageAttachment) error {
	user := models.NewMessage(models.RoleUser, content, images)
	placeholder := models.NewMessage(models.RoleAssistant, "", nil)

	st := c.dispatch(turnStarted{user: user, placeholder: placeholder})
	defer c.dispatch(loadingFinished{})

	history := make([]models.ChatMessage, 0, len(st.Messages))
	for _, m := range st.Messages {
		if m.ID == placeholder.ID {
			continue
		}
		history = append(history, models.ChatMessageFrom(m))
	}

	if err := c.runTurn(ctx, st.ConversationID, content, history, placeholder.ID); err != nil {
		c.logger.Warn("chat turn failed", "error", err)
		c.dispatch(turnFailed{placeholderID: placeholder.ID, message: SendFailedMessage})
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

func (c *Controller) runTurn(ctx context.Context, convID, content string, history []models.ChatMessage, placeholderID string) error {
	if convID == "" {
		if c.creator == nil {
			return errors.New("no conversation creator configured")
		}
		conv, err := c.creator.Create(ctx, models.TitleFromContent(content))
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		convID = conv.ID
		c.dispatch(conversationAssigned{id: convID})
		if c.onCreated != nil {
			c.onCreated(convID)
		}
	}

	body, err := c.api.Chat(ctx, models.ChatRequest{ConversationID: &convID, Messages: history})
	if err != nil {
		return err
	}
	defer body.Close()

	var buf []byte
	return sse.NewReader(body).Each(func(text string) error {
		buf = append(buf, text...)
		c.dispatch(contentReplaced{id: placeholderID, content: string(buf)})
		return nil
	})
}

// ClearMessages empties the message list. No network effect.
func (c *Controller) ClearMessages() {
	c.dispatch(messagesReset{})
}

// SetMessages replaces the message list, e.g. with a conversation loaded
// from the store. The store's copy wins over anything held locally.
func (c *Controller) SetMessages(msgs []models.Message) {
	c.dispatch(messagesReset{messages: msgs})
}

// SetConversationID associates the controller with a conversation. An empty
// id means the next message creates one.
func (c *Controller) SetConversationID(id string) {
	c.dispatch(conversationAssigned{id: id})
}

// DismissError clears the error banner.
func (c *Controller) DismissError() {
	c.dispatch(errorDismissed{})
}
