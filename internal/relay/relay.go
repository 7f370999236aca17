// Package relay implements POST /chat: it streams a model reply to the client
// as server-sent events and then persists the turn.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/raphaelgruber/kaiwa/internal/db"
	"github.com/raphaelgruber/kaiwa/internal/metrics"
	"github.com/raphaelgruber/kaiwa/internal/models"
	"github.com/raphaelgruber/kaiwa/internal/sse"
)

// Response error strings. Causes are logged, never returned to the client.
const (
	errInvalidBody      = "Invalid request body"
	errMessagesRequired = "Messages are required"
	errInvalidMessage   = "Invalid message"
	errInternal         = "Internal server error"
)

// Gateway produces the streamed model reply.
type Gateway interface {
	Stream(ctx context.Context, msgs []models.ChatMessage, onDelta func(string) error) (string, error)
}

// TurnStore persists a finished turn.
type TurnStore interface {
	AppendTurn(ctx context.Context, id string, user, assistant models.Message) error
}

// Relay is the chat stream handler.
type Relay struct {
	gateway Gateway
	store   TurnStore
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a relay. mc may be nil.
func New(gateway Gateway, store TurnStore, logger *slog.Logger, mc *metrics.Collector) *Relay {
	return &Relay{gateway: gateway, store: store, logger: logger, metrics: mc}
}

// ServeHTTP handles one chat turn.
//
// Until the first delta is written the handler can still answer with a JSON
// error. Afterwards a failure aborts the connection without the done frame, so
// the client observes a truncated stream.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, errMessagesRequired)
		return
	}
	for _, m := range req.Messages {
		if err := m.Validate(); err != nil {
			rl.logger.Debug("rejected chat message", "error", err)
			writeError(w, http.StatusBadRequest, errInvalidMessage)
			return
		}
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		rl.logger.Error("chat stream unavailable", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	// The turn runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	log := rl.logger.With("conversation_id", conversationID(req))

	clientGone := false
	reply, err := rl.gateway.Stream(ctx, req.Messages, func(delta string) error {
		rl.metrics.Incr(metrics.CountDeltasRelayed)
		if clientGone {
			return nil
		}
		if err := stream.WriteText(delta); err != nil {
			log.Debug("client stopped reading", "error", err)
			clientGone = true
		}
		return nil
	})
	if err != nil {
		rl.fail(w, stream, log, "chat stream failed", err)
		return
	}

	if req.ConversationID != nil {
		if err := rl.persist(ctx, *req.ConversationID, req.Messages[len(req.Messages)-1], reply); err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				rl.fail(w, stream, log, "persist turn failed", err)
				return
			}
			log.Warn("conversation not found, turn not saved")
		}
	}

	rl.metrics.Incr(metrics.CountTurnsCompleted)
	if clientGone {
		return
	}
	if err := stream.WriteDone(); err != nil {
		log.Debug("write done frame", "error", err)
	}
}

// persist appends the last user message and the assistant reply.
func (rl *Relay) persist(ctx context.Context, id string, last models.ChatMessage, reply string) error {
	images := make([]models.ImageAttachment, 0, len(last.Images))
	for _, img := range last.Images {
		images = append(images, img.StoredCopy())
	}
	if len(images) == 0 {
		images = nil
	}
	user := models.NewMessage(models.RoleUser, last.Content, images)
	assistant := models.NewMessage(models.RoleAssistant, reply, nil)
	return rl.store.AppendTurn(ctx, id, user, assistant)
}

func (rl *Relay) fail(w http.ResponseWriter, stream *sse.Writer, log *slog.Logger, msg string, err error) {
	rl.metrics.Incr(metrics.CountTurnsFailed)
	log.Error(msg, "error", err, "streamed", stream.Started())
	if !stream.Started() {
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	panic(http.ErrAbortHandler)
}

func conversationID(req models.ChatRequest) string {
	if req.ConversationID == nil {
		return ""
	}
	return *req.ConversationID
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
