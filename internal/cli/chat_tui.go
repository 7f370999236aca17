package cli

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/kaiwa/internal/chat"
	"github.com/raphaelgruber/kaiwa/internal/conversations"
	"github.com/raphaelgruber/kaiwa/internal/models"
)

// stateChangedMsg signals that the controller has a newer state.
type stateChangedMsg struct{}

// sendDoneMsg reports the end of a turn.
type sendDoneMsg struct {
	err error
}

// chatModel is the bubbletea model for an interactive chat session.
type chatModel struct {
	ctx     context.Context
	ctrl    *chat.Controller
	list    *conversations.Controller
	changed chan struct{}

	input   textinput.Model
	spinner spinner.Model
	theme   Theme
	state   chat.State
	title   string
	// pending images go with the next message only
	pending []models.ImageAttachment
}

// newChatModel creates the model. changed is signalled by the controller's
// OnChange; it must have a buffer of one.
func newChatModel(ctx context.Context, ctrl *chat.Controller, list *conversations.Controller, changed chan struct{}, images []models.ImageAttachment) chatModel {
	in := textinput.New()
	in.Placeholder = "Type a message…"
	in.Prompt = "> "
	in.CharLimit = 0
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	title := models.DefaultConversationTitle
	if cur := list.State().Current; cur != nil {
		title = cur.Title
	}

	return chatModel{
		ctx:     ctx,
		ctrl:    ctrl,
		list:    list,
		changed: changed,
		input:   in,
		spinner: sp,
		theme:   defaultTheme,
		state:   ctrl.State(),
		title:   title,
		pending: images,
	}
}

// Init starts the spinner and listens for state changes.
func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForChange(m.changed),
	)
}

// waitForChange blocks until the controller signals a new state.
// Runs in a separate goroutine (command) to avoid blocking Update().
func waitForChange(changed <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changed
		return stateChangedMsg{}
	}
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.ctrl.DismissError()
			return m, nil
		case "ctrl+n":
			if m.state.IsLoading {
				return m, nil
			}
			m.list.StartNewChat()
			m.ctrl.SetConversationID("")
			m.ctrl.ClearMessages()
			m.title = models.DefaultConversationTitle
			m.pending = nil
			return m, nil
		case "enter":
			return m.submit()
		}

	case stateChangedMsg:
		m.state = m.ctrl.State()
		return m, waitForChange(m.changed)

	case sendDoneMsg:
		// The list refetch after create may have renamed the conversation.
		if cur := m.currentTitle(); cur != "" {
			m.title = cur
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input as a new turn. Turns do not overlap.
func (m chatModel) submit() (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(m.input.Value())
	if m.state.IsLoading || (content == "" && len(m.pending) == 0) {
		return m, nil
	}
	images := m.pending
	m.pending = nil
	m.input.SetValue("")

	ctx, ctrl := m.ctx, m.ctrl
	return m, func() tea.Msg {
		return sendDoneMsg{err: ctrl.SendMessage(ctx, content, images)}
	}
}

func (m chatModel) currentTitle() string {
	id := m.state.ConversationID
	if id == "" {
		return ""
	}
	for _, it := range m.list.State().Conversations {
		if it.ID == id {
			return it.Title
		}
	}
	return ""
}

// View renders the chat.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string.
func (m chatModel) renderContent() string {
	var b strings.Builder

	b.WriteString(m.theme.titleStyle().Render(m.title))
	b.WriteString("\n")

	if len(m.state.Messages) == 0 {
		b.WriteString(m.theme.hintStyle().Render("Start a conversation."))
		b.WriteString("\n")
	}
	for _, msg := range m.state.Messages {
		b.WriteString("\n")
		b.WriteString(m.theme.roleLabel(msg.Role == models.RoleAssistant))
		b.WriteString("\n")
		for _, img := range msg.Images {
			b.WriteString(m.theme.hintStyle().Render("[image] " + imageLabel(img)))
			b.WriteString("\n")
		}
		if chat.Typing(msg) {
			b.WriteString(m.spinner.View())
			b.WriteString("\n")
			continue
		}
		if msg.Content != "" {
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
	}

	if m.state.Error != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.errorStyle().Render("✗ " + m.state.Error))
		b.WriteString(" ")
		b.WriteString(m.theme.hintStyle().Render("(esc to dismiss)"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if len(m.pending) > 0 {
		b.WriteString(m.theme.hintStyle().Render(fmt.Sprintf("%d image(s) attached", len(m.pending))))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.theme.hintStyle().Render("enter send · ctrl+n new chat · ctrl+c quit"))
	b.WriteString("\n")
	return b.String()
}

// runChatTUI runs the interactive chat until the user quits.
func runChatTUI(ctx context.Context, id string, images []models.ImageAttachment) error {
	changed := make(chan struct{}, 1)
	notify := func(chat.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	ctrl, list, err := newSession(ctx, id, notify, nil)
	if err != nil {
		return err
	}

	p := tea.NewProgram(newChatModel(ctx, ctrl, list, changed, images))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
