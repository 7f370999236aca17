package chat

import (
	"slices"

	"github.com/raphaelgruber/kaiwa/internal/models"
)

// State is a snapshot of one conversation as the controller sees it.
// Messages may be ahead of the store while a turn is streaming.
type State struct {
	ConversationID string
	Messages       []models.Message
	IsLoading      bool
	// Error is the user-facing message of the last failed turn.
	Error string
}

// Typing reports whether m is an assistant placeholder still waiting for its
// first delta.
func Typing(m models.Message) bool {
	return m.Role == models.RoleAssistant && m.Content == ""
}

func (s State) clone() State {
	s.Messages = slices.Clone(s.Messages)
	return s
}

// action is a state transition. Every mutation of State goes through reduce.
type action interface {
	isAction()
}

type turnStarted struct {
	user        models.Message
	placeholder models.Message
}

type contentReplaced struct {
	id      string
	content string
}

type messageRemoved struct {
	id string
}

type turnFailed struct {
	placeholderID string
	message       string
}

type loadingFinished struct{}

type messagesReset struct {
	messages []models.Message
}

type conversationAssigned struct {
	id string
}

type errorDismissed struct{}

func (turnStarted) isAction()          {}
func (contentReplaced) isAction()      {}
func (messageRemoved) isAction()       {}
func (turnFailed) isAction()           {}
func (loadingFinished) isAction()      {}
func (messagesReset) isAction()        {}
func (conversationAssigned) isAction() {}
func (errorDismissed) isAction()       {}

// reduce returns the state after a. It never mutates s.Messages in place.
func reduce(s State, a action) State {
	s = s.clone()

	switch a := a.(type) {
	case turnStarted:
		s.IsLoading = true
		s.Error = ""
		s.Messages = append(s.Messages, a.user, a.placeholder)

	case contentReplaced:
		// Unknown ids are ignored; the message may have been cleared mid-turn.
		if i := indexOf(s.Messages, a.id); i >= 0 {
			s.Messages[i].Content = a.content
		}

	case messageRemoved:
		s.Messages = removeID(s.Messages, a.id)

	case turnFailed:
		s.Messages = removeID(s.Messages, a.placeholderID)
		s.Error = a.message

	case loadingFinished:
		s.IsLoading = false

	case messagesReset:
		s.Messages = slices.Clone(a.messages)
		if s.Messages == nil {
			s.Messages = []models.Message{}
		}

	case conversationAssigned:
		s.ConversationID = a.id

	case errorDismissed:
		s.Error = ""
	}
	return s
}

func indexOf(msgs []models.Message, id string) int {
	return slices.IndexFunc(msgs, func(m models.Message) bool { return m.ID == id })
}

func removeID(msgs []models.Message, id string) []models.Message {
	return slices.DeleteFunc(msgs, func(m models.Message) bool { return m.ID == id })
}
