// Package models defines the data structures shared by the kaiwa server and client.
package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// MediaType is the MIME type of an image attachment.
type MediaType string

const (
	MediaTypeJPEG MediaType = "image/jpeg"
	MediaTypePNG  MediaType = "image/png"
	MediaTypeGIF  MediaType = "image/gif"
	MediaTypeWebP MediaType = "image/webp"
)

// Valid reports whether m is one of the accepted image media types.
func (m MediaType) Valid() bool {
	switch m {
	case MediaTypeJPEG, MediaTypePNG, MediaTypeGIF, MediaTypeWebP:
		return true
	}
	return false
}

// ImageType is the only attachment type.
const ImageType = "image"

// StoredImagePrefixLen is how many characters of image data survive in a stored copy.
const StoredImagePrefixLen = 100

// ErrInvalidMessage is returned when a message fails validation.
var ErrInvalidMessage = errors.New("invalid message")

// ImageAttachment is an inline base64 image sent with a user message.
type ImageAttachment struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	MediaType MediaType `json:"mediaType"`
	Data      string    `json:"data"`
	Name      string    `json:"name,omitempty"`
	// Truncated marks a stored reference copy whose Data is only a prefix.
	Truncated bool `json:"truncated,omitempty"`
}

// Validate checks the attachment's type, media type and payload.
func (a ImageAttachment) Validate() error {
	if a.Type != ImageType {
		return fmt.Errorf("%w: attachment type %q", ErrInvalidMessage, a.Type)
	}
	if !a.MediaType.Valid() {
		return fmt.Errorf("%w: media type %q", ErrInvalidMessage, a.MediaType)
	}
	if a.Truncated {
		return nil
	}
	if _, err := base64.StdEncoding.DecodeString(a.Data); err != nil {
		return fmt.Errorf("%w: image %s data is not base64", ErrInvalidMessage, a.ID)
	}
	return nil
}

// Bytes decodes the attachment's base64 payload.
func (a ImageAttachment) Bytes() ([]byte, error) {
	if a.Truncated {
		return nil, fmt.Errorf("image %s holds a truncated reference, not image data", a.ID)
	}
	return base64.StdEncoding.DecodeString(a.Data)
}

// StoredCopy returns the reference form persisted with a conversation:
// the first StoredImagePrefixLen characters of data followed by "...".
func (a ImageAttachment) StoredCopy() ImageAttachment {
	if a.Truncated {
		return a
	}
	data := a.Data
	if len(data) > StoredImagePrefixLen {
		data = data[:StoredImagePrefixLen]
	}
	a.Data = data + "..."
	a.Truncated = true
	return a
}

// Message is a single turn fragment within a conversation.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Images    []ImageAttachment `json:"images,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewMessage creates a message with a fresh id and the current timestamp.
func NewMessage(role Role, content string, images []ImageAttachment) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Images:    images,
		CreatedAt: time.Now(),
	}
}

// Validate checks a message before it is written to storage.
func (m Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidMessage)
	}
	if !m.Role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidMessage, m.Role)
	}
	for _, img := range m.Images {
		if err := img.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ChatMessage is the wire shape of one history entry sent to the relay.
type ChatMessage struct {
	Role    Role              `json:"role"`
	Content string            `json:"content"`
	Images  []ImageAttachment `json:"images,omitempty"`
}

// Validate checks a chat message received from a client.
func (m ChatMessage) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidMessage, m.Role)
	}
	for _, img := range m.Images {
		if err := img.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ChatMessageFrom projects a stored message onto the relay wire shape.
func ChatMessageFrom(m Message) ChatMessage {
	return ChatMessage{Role: m.Role, Content: m.Content, Images: m.Images}
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	ConversationID *string       `json:"conversationId"`
	Messages       []ChatMessage `json:"messages"`
}
