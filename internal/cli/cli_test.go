package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/kaiwa/internal/chat"
	"github.com/raphaelgruber/kaiwa/internal/client"
	"github.com/raphaelgruber/kaiwa/internal/models"
	"github.com/raphaelgruber/kaiwa/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// pngPixel is a 1x1 transparent PNG.
const pngPixel = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// fakeServer is a minimal kaiwa API for command tests.
type fakeServer struct {
	mu      sync.Mutex
	chats   []models.ChatRequest
	creates int
	deletes int
	titles  []string
	updates []client.UpdateRequest
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/conversations":
		_, _ = io.WriteString(w, `{"conversations":[{"_id":"c1","title":"Kyoto","updatedAt":"2025-01-01T00:00:00Z"}]}`)
	case r.Method == http.MethodPost && r.URL.Path == "/conversations":
		f.creates++
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.titles = append(f.titles, body["title"])
		_, _ = io.WriteString(w, `{"_id":"c9","title":"hello there","messages":[]}`)
	case r.Method == http.MethodGet && r.URL.Path == "/conversations/c1":
		_, _ = io.WriteString(w, `{"_id":"c1","title":"Kyoto","messages":[
			{"id":"m1","role":"user","content":"Where to go?","createdAt":"2025-01-01T00:00:00Z"},
			{"id":"m2","role":"assistant","content":"Fushimi Inari.","createdAt":"2025-01-01T00:00:01Z"}]}`)
	case r.Method == http.MethodPut && r.URL.Path == "/conversations/c9":
		var req client.UpdateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.updates = append(f.updates, req)
		_, _ = io.WriteString(w, `{"_id":"c9","title":"hello there","messages":[]}`)
	case r.Method == http.MethodDelete && r.URL.Path == "/conversations/c1":
		f.deletes++
		_, _ = io.WriteString(w, `{"success":true}`)
	case r.Method == http.MethodPost && r.URL.Path == "/chat":
		var req models.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.chats = append(f.chats, req)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"text\":\"Hel\"}\n\ndata: {\"text\":\"lo\"}\n\ndata: [DONE]\n\n")
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"Conversation not found"}`)
	}
}

// useServer points the package-level client at a fake server.
func useServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	ts := httptest.NewServer(fs)
	t.Cleanup(ts.Close)

	prevClient, prevLogger := apiClient, logger
	apiClient = client.New(ts.URL)
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() { apiClient, logger = prevClient, prevLogger })
	return fs
}

func writePNG(t *testing.T) string {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(pngPixel)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pixel.png")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLoadImage(t *testing.T) {
	img, err := loadImage(writePNG(t))
	require.NoError(t, err)
	assert.Equal(t, models.MediaTypePNG, img.MediaType)
	assert.Equal(t, models.ImageType, img.Type)
	assert.Equal(t, "pixel.png", img.Name)
	assert.Equal(t, pngPixel, img.Data)
	assert.NoError(t, img.Validate())

	text := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(text, []byte("just text"), 0644))
	_, err = loadImage(text)
	assert.ErrorContains(t, err, "unsupported image type")

	_, err = loadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestRenderMarkdown(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	conv := &models.Conversation{
		ID:    "c1",
		Title: "Kyoto: day one",
		Messages: []models.Message{
			{ID: "m1", Role: models.RoleUser, Content: "What is this?", Images: []models.ImageAttachment{
				{ID: "i", Type: models.ImageType, MediaType: models.MediaTypeJPEG, Data: "abc...", Name: "gate.jpg", Truncated: true},
			}},
			{ID: "m2", Role: models.RoleAssistant, Content: "A torii gate."},
		},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
	}

	out, err := renderMarkdown(conv)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(out, "---\n"))
	parts := strings.SplitN(out[4:], "---\n", 2)
	require.Len(t, parts, 2)

	var fm parser.Frontmatter
	require.NoError(t, yaml.Unmarshal([]byte(parts[0]), &fm))
	assert.Equal(t, "c1", fm.ID)
	assert.Equal(t, "Kyoto: day one", fm.Title, "titles with colons survive YAML")
	assert.Equal(t, 2, fm.Messages)
	assert.True(t, fm.UpdatedAt.Equal(created.Add(time.Hour)))

	body := parts[1]
	assert.Contains(t, body, "# Kyoto: day one\n")
	assert.Contains(t, body, "## You\n\n- image: gate.jpg (image/jpeg)\n\nWhat is this?\n")
	assert.Contains(t, body, "## Assistant\n\nA torii gate.\n")
	assert.NotContains(t, body, "abc...", "image data is never exported")
}

func TestStreamPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &streamPrinter{w: &buf}

	user := models.NewMessage(models.RoleUser, "hi", nil)
	reply := models.NewMessage(models.RoleAssistant, "", nil)
	for _, content := range []string{"", "Hel", "Hello", "Hello"} {
		reply.Content = content
		p.onChange(chat.State{Messages: []models.Message{user, reply}})
	}
	assert.Equal(t, "Hello", buf.String())

	// A new turn starts printing from zero
	next := models.NewMessage(models.RoleAssistant, "Again", nil)
	p.onChange(chat.State{Messages: []models.Message{user, reply, user, next}})
	assert.Equal(t, "HelloAgain", buf.String())
}

func TestConfirm(t *testing.T) {
	for input, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false} {
		ok, err := confirm(strings.NewReader(input), io.Discard, "delete?")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "input %q", input)
	}
}

func TestPlainChatCreatesConversation(t *testing.T) {
	fs := useServer(t)
	var out, errOut bytes.Buffer

	err := runPlainChat(context.Background(), &out, &errOut, "", "hello there", nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello\n", out.String())
	assert.Contains(t, errOut.String(), "c9")
	assert.Equal(t, 1, fs.creates)
	require.Len(t, fs.chats, 1)
	assert.Equal(t, "c9", *fs.chats[0].ConversationID)
}

func TestPlainChatContinuesConversation(t *testing.T) {
	fs := useServer(t)
	var out bytes.Buffer

	require.NoError(t, runPlainChat(context.Background(), &out, io.Discard, "c1", "and after?", nil))

	assert.Zero(t, fs.creates)
	require.Len(t, fs.chats, 1)
	msgs := fs.chats[0].Messages
	require.Len(t, msgs, 3, "history is sent with the new message")
	assert.Equal(t, "Where to go?", msgs[0].Content)
	assert.Equal(t, "and after?", msgs[2].Content)
}

func TestPlainChatUnknownConversation(t *testing.T) {
	useServer(t)
	err := runPlainChat(context.Background(), io.Discard, io.Discard, "nope", "hi", nil)
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestListAndShowOutput(t *testing.T) {
	useServer(t)

	var buf bytes.Buffer
	items, err := apiClient.ListConversations(context.Background())
	require.NoError(t, err)
	printList(&buf, items, defaultTheme)
	assert.Contains(t, buf.String(), "Conversations (1)")
	assert.Contains(t, buf.String(), "Kyoto")

	buf.Reset()
	conv, err := apiClient.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	printTranscript(&buf, conv, defaultTheme)
	assert.Contains(t, buf.String(), "Where to go?")
	assert.Contains(t, buf.String(), "Fushimi Inari.")
}

func TestDeleteCommandForce(t *testing.T) {
	fs := useServer(t)
	deleteForce = true
	t.Cleanup(func() { deleteForce = false })

	var out bytes.Buffer
	deleteCmd.SetOut(&out)
	deleteCmd.SetContext(context.Background())
	require.NoError(t, runDelete(deleteCmd, []string{"c1"}))

	assert.Equal(t, 1, fs.deletes)
	assert.Contains(t, out.String(), "Deleted: Kyoto")
}

func TestImportCommandRoundTrip(t *testing.T) {
	fs := useServer(t)

	conv := &models.Conversation{
		ID:    "c1",
		Title: "Kyoto",
		Messages: []models.Message{
			{ID: "m1", Role: models.RoleUser, Content: "What is this?", Images: []models.ImageAttachment{
				{ID: "i", Type: models.ImageType, MediaType: models.MediaTypePNG, Data: "abc...", Name: "gate.png", Truncated: true},
			}},
			{ID: "m2", Role: models.RoleAssistant, Content: "A torii gate.\n\n## History\n\nVery old."},
		},
	}
	content, err := renderMarkdown(conv)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "kyoto.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	var out, errOut bytes.Buffer
	importCmd.SetOut(&out)
	importCmd.SetErr(&errOut)
	importCmd.SetContext(context.Background())
	require.NoError(t, runImport(importCmd, []string{path}))

	assert.Equal(t, []string{"Kyoto"}, fs.titles)
	require.Len(t, fs.updates, 1)
	require.NotNil(t, fs.updates[0].Messages)
	msgs := *fs.updates[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "What is this?", msgs[0].Content)
	assert.Empty(t, msgs[0].Images)
	assert.Equal(t, "A torii gate.\n\n## History\n\nVery old.", msgs[1].Content)
	assert.NotEqual(t, "m1", msgs[0].ID, "imported messages get fresh ids")

	assert.Contains(t, out.String(), "Imported 2 messages")
	assert.Contains(t, errOut.String(), "Skipped 1 image")
}

func TestChatModelKeys(t *testing.T) {
	fs := useServer(t)
	ctx := context.Background()

	changed := make(chan struct{}, 1)
	ctrl, list, err := newSession(ctx, "c1", func(chat.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, nil)
	require.NoError(t, err)

	m := newChatModel(ctx, ctrl, list, changed, nil)
	assert.Equal(t, "Kyoto", m.title)
	assert.Contains(t, m.renderContent(), "Fushimi Inari.")

	// Typing and enter sends one turn
	m.input.SetValue("and then?")
	next, cmd := m.Update(tea.KeyPressMsg{Code: tea.KeyEnter})
	m = next.(chatModel)
	require.NotNil(t, cmd)
	done, ok := cmd().(sendDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	require.Len(t, fs.chats, 1)

	next, _ = m.Update(stateChangedMsg{})
	m = next.(chatModel)
	require.Len(t, m.state.Messages, 4)
	assert.Equal(t, "Hello", m.state.Messages[3].Content)
	assert.Empty(t, m.input.Value())

	// ctrl+n starts over without deleting anything
	next, _ = m.Update(tea.KeyPressMsg{Code: 'n', Mod: tea.ModCtrl})
	m = next.(chatModel)
	assert.Empty(t, ctrl.State().Messages)
	assert.Empty(t, ctrl.State().ConversationID)
	assert.Nil(t, list.State().Current)
	assert.Zero(t, fs.deletes)

	// ctrl+c quits
	_, cmd = m.Update(tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestChatModelRendersTypingAndError(t *testing.T) {
	m := chatModel{theme: defaultTheme, title: "t", input: textinput.New(), spinner: spinner.New()}
	m.state = chat.State{
		Messages: []models.Message{
			models.NewMessage(models.RoleUser, "hi", nil),
			models.NewMessage(models.RoleAssistant, "", nil),
		},
		Error: chat.SendFailedMessage,
	}
	view := m.renderContent()
	assert.Contains(t, view, "hi")
	assert.Contains(t, view, "Failed to send message")
	assert.Contains(t, view, "esc to dismiss")
}
