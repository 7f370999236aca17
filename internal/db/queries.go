package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/kaiwa/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// conversationRow is the stored shape of a conversation record.
type conversationRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	Title     string                 `json:"title"`
	Messages  []messageRow           `json:"messages"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

type messageRow struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Images    []imageRow `json:"images,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type imageRow struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
	Name      string `json:"name,omitempty"`
	Truncated bool   `json:"truncated"`
}

type listRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	Title     string                 `json:"title"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// UpdateInput is a partial conversation update. Nil fields are left unchanged.
type UpdateInput struct {
	Title    *string
	Messages *[]models.Message
}

func (r conversationRow) toModel() (*models.Conversation, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msg := models.Message{
			ID:        m.ID,
			Role:      models.Role(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		for _, img := range m.Images {
			msg.Images = append(msg.Images, models.ImageAttachment{
				ID:        img.ID,
				Type:      img.Type,
				MediaType: models.MediaType(img.MediaType),
				Data:      img.Data,
				Name:      img.Name,
				Truncated: img.Truncated,
			})
		}
		messages = append(messages, msg)
	}

	return &models.Conversation{
		ID:        id,
		Title:     r.Title,
		Messages:  messages,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// toRows validates messages at the storage boundary and converts them to rows.
// Images are always written in their truncated reference form.
func toRows(msgs []models.Message) ([]messageRow, error) {
	rows := make([]messageRow, 0, len(msgs))
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		row := messageRow{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now()
		}
		for _, img := range m.Images {
			stored := img.StoredCopy()
			row.Images = append(row.Images, imageRow{
				ID:        stored.ID,
				Type:      stored.Type,
				MediaType: string(stored.MediaType),
				Data:      stored.Data,
				Name:      stored.Name,
				Truncated: stored.Truncated,
			})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// singleConversation extracts the first row of the first statement result.
func singleConversation(results []conversationRow) (*models.Conversation, error) {
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results[0].toModel()
}

// ListConversations returns every conversation projected to its list item,
// most recently updated first.
func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationListItem, error) {
	results, err := query[[]listRow](ctx, c, `
		SELECT id, title, updated_at FROM conversation ORDER BY updated_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	items := []models.ConversationListItem{}
	if results == nil || len(*results) == 0 {
		return items, nil
	}
	for _, row := range (*results)[0].Result {
		id, err := models.RecordIDString(row.ID)
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		items = append(items, models.ConversationListItem{
			ID:        id,
			Title:     row.Title,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return items, nil
}

// CreateConversation creates an empty conversation. An empty title becomes
// models.DefaultConversationTitle.
func (c *Client) CreateConversation(ctx context.Context, title string) (*models.Conversation, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}

	results, err := query[[]conversationRow](ctx, c, `
		CREATE type::record("conversation", $id) SET
			title = $title,
			messages = [],
			created_at = type::datetime($now),
			updated_at = type::datetime($now)
		RETURN AFTER
	`, map[string]any{
		"id":    uuid.NewString(),
		"title": title,
		"now":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create conversation: no result returned")
	}
	return (*results)[0].Result[0].toModel()
}

// GetConversation retrieves a conversation with its full history.
// Returns ErrNotFound if it does not exist.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	results, err := query[[]conversationRow](ctx, c, `
		SELECT * FROM type::record("conversation", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, ErrNotFound
	}
	return singleConversation((*results)[0].Result)
}

// UpdateConversation applies a partial update and bumps updated_at.
// Whole-document replacement of messages is last-write-wins.
func (c *Client) UpdateConversation(ctx context.Context, id string, in UpdateInput) (*models.Conversation, error) {
	sets := []string{"updated_at = time::now()"}
	vars := map[string]any{"id": id}

	if in.Title != nil {
		sets = append(sets, "title = $title")
		vars["title"] = *in.Title
	}
	if in.Messages != nil {
		rows, err := toRows(*in.Messages)
		if err != nil {
			return nil, fmt.Errorf("update conversation: %w", err)
		}
		sets = append(sets, "messages = $messages")
		vars["messages"] = rows
	}

	// Guarded by the existence check so an unknown id is never created.
	sql := fmt.Sprintf(`
		UPDATE type::record("conversation", $id) SET %s
		WHERE created_at != NONE
		RETURN AFTER
	`, strings.Join(sets, ", "))

	results, err := query[[]conversationRow](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, ErrNotFound
	}
	return singleConversation((*results)[0].Result)
}

// DeleteConversation removes a conversation. Returns ErrNotFound if it did not exist.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	results, err := query[[]conversationRow](ctx, c, `
		DELETE type::record("conversation", $id) RETURN BEFORE
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	// RETURN BEFORE yields the deleted record; nothing means nothing existed
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendTurn appends a user message and the assistant reply in one atomic
// update, user first, and bumps updated_at.
func (c *Client) AppendTurn(ctx context.Context, id string, user, assistant models.Message) error {
	rows, err := toRows([]models.Message{user, assistant})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	results, err := query[[]conversationRow](ctx, c, `
		UPDATE type::record("conversation", $id) SET
			messages = array::concat(messages, $messages),
			updated_at = time::now()
		WHERE created_at != NONE
		RETURN AFTER
	`, map[string]any{
		"id":       id,
		"messages": rows,
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return ErrNotFound
	}
	return nil
}
