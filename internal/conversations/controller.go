// Package conversations keeps the client's view of the conversation list and
// the currently selected conversation.
package conversations

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/raphaelgruber/kaiwa/internal/models"
)

// API is the subset of the server API the list needs.
type API interface {
	ListConversations(ctx context.Context) ([]models.ConversationListItem, error)
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// State is a snapshot of the list. Conversations is always the server's
// order, most recently updated first.
type State struct {
	Conversations []models.ConversationListItem
	Current       *models.Conversation
	IsLoading     bool
}

// Controller manages the conversation list.
type Controller struct {
	api      API
	logger   *slog.Logger
	onChange func(State)

	mu    sync.Mutex
	state State
}

// New creates the controller and fetches the list once. A failed initial
// fetch is logged and leaves the list empty.
func New(ctx context.Context, api API, logger *slog.Logger, onChange func(State)) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		api:      api,
		logger:   logger,
		onChange: onChange,
		state:    State{Conversations: []models.ConversationListItem{}},
	}
	_ = c.Fetch(ctx)
	return c
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	s := c.state
	s.Conversations = slices.Clone(s.Conversations)
	return s
}

// update applies fn under the lock and notifies the listener.
func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	if c.onChange != nil {
		c.onChange(c.snapshot())
	}
}

// Fetch replaces the list with the server's.
func (c *Controller) Fetch(ctx context.Context) error {
	items, err := c.api.ListConversations(ctx)
	if err != nil {
		c.logger.Error("failed to fetch conversations", "error", err)
		return err
	}
	if items == nil {
		items = []models.ConversationListItem{}
	}
	c.update(func(s *State) { s.Conversations = items })
	return nil
}

// Refresh is Fetch.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.Fetch(ctx)
}

// Create creates a conversation and refetches the list. An empty title
// becomes models.DefaultConversationTitle.
func (c *Controller) Create(ctx context.Context, title string) (*models.Conversation, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	conv, err := c.api.CreateConversation(ctx, title)
	if err != nil {
		c.logger.Error("failed to create conversation", "error", err)
		return nil, err
	}
	if err := c.Fetch(ctx); err != nil {
		// The conversation exists; the list catches up on the next refresh.
		c.logger.Warn("list refresh after create failed", "id", conv.ID)
	}
	return conv, nil
}

// Delete removes id from the local list immediately, then asks the server to
// delete it. A server failure is returned but the local removal stands.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.update(func(s *State) {
		s.Conversations = slices.DeleteFunc(slices.Clone(s.Conversations), func(it models.ConversationListItem) bool {
			return it.ID == id
		})
		if s.Current != nil && s.Current.ID == id {
			s.Current = nil
		}
	})

	if err := c.api.DeleteConversation(ctx, id); err != nil {
		c.logger.Error("failed to delete conversation", "id", id, "error", err)
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// Select fetches a conversation in full and makes it current. On failure the
// previous selection is kept.
func (c *Controller) Select(ctx context.Context, id string) (*models.Conversation, error) {
	c.update(func(s *State) { s.IsLoading = true })
	defer c.update(func(s *State) { s.IsLoading = false })

	conv, err := c.api.GetConversation(ctx, id)
	if err != nil {
		c.logger.Error("failed to fetch conversation", "id", id, "error", err)
		return nil, err
	}
	c.update(func(s *State) { s.Current = conv })
	return conv, nil
}

// StartNewChat clears the selection without deleting anything.
func (c *Controller) StartNewChat() {
	c.update(func(s *State) { s.Current = nil })
}
