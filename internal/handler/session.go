package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/marketsim/internal/config"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/service"
	"github.com/efreitasn/marketsim/internal/wire"
)

// SessionHandler handles HTTP requests for session lifecycle and message
// endpoints.
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// createSessionRequest is the JSON request body for POST /sessions.
type createSessionRequest struct {
	Name   string         `json:"name"`
	Engine *config.Engine `json:"engine"`
}

// sessionResponse describes one session.
type sessionResponse struct {
	SessionID      string        `json:"session_id"`
	Name           string        `json:"name"`
	CreatedAt      string        `json:"created_at"`
	Engine         config.Engine `json:"engine"`
	Messages       int           `json:"messages"`
	PendingBatches int           `json:"pending_batches"`
	Subscribers    int           `json:"subscribers"`
}

// closeResponse is the JSON response for DELETE /sessions/{session_id}.
type closeResponse struct {
	SessionID string `json:"session_id"`
	Drained   int    `json:"drained"`
	Discarded int    `json:"discarded"`
}

// submitRequest is the JSON request body for POST /sessions/{session_id}/messages.
type submitRequest struct {
	Messages []wire.Record `json:"messages"`
}

// messagesResponse carries serialized output messages. NextOffset is set on
// journal reads.
type messagesResponse struct {
	Messages   []*wire.Record `json:"messages"`
	NextOffset *int           `json:"next_offset,omitempty"`
}

// Create handles POST /sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := ParseJSON(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	sess, err := h.sessions.Create(service.CreateSessionRequest{
		Name:   req.Name,
		Engine: req.Engine,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildSessionResponse(sess.Info()))
}

// List handles GET /sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	infos := h.sessions.List()
	resp := make([]sessionResponse, len(infos))
	for i, info := range infos {
		resp[i] = buildSessionResponse(info)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"sessions": resp})
}

// Get handles GET /sessions/{session_id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, buildSessionResponse(sess.Info()))
}

// Close handles DELETE /sessions/{session_id}. Deferred output is drained
// unless drain=false.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	drain := true
	if d := r.URL.Query().Get("drain"); d != "" {
		var err error
		drain, err = strconv.ParseBool(d)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "drain must be a boolean")
			return
		}
	}

	res, err := h.sessions.Close(chi.URLParam(r, "session_id"), drain)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, closeResponse{
		SessionID: res.SessionID,
		Drained:   res.Drained,
		Discarded: res.Discarded,
	})
}

// Submit handles POST /sessions/{session_id}/messages. The response holds
// the output produced while processing the batch; deferred output shows up
// later in the journal.
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sess, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}

	var req submitRequest
	if err := ParseJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	msgs := make([]domain.Message, len(req.Messages))
	for i := range req.Messages {
		m, err := req.Messages[i].Message()
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("messages[%d]: %v", i, err))
			return
		}
		msgs[i] = m
	}

	out, err := sess.Submit(msgs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	records, err := toRecords(out)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, messagesResponse{Messages: records})
}

// Messages handles GET /sessions/{session_id}/messages.
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	sess, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	msgs, next, err := sess.Messages(offset, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	records, err := toRecords(msgs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, messagesResponse{Messages: records, NextOffset: &next})
}

func buildSessionResponse(info service.SessionInfo) sessionResponse {
	return sessionResponse{
		SessionID:      info.ID,
		Name:           info.Name,
		CreatedAt:      info.CreatedAt.UTC().Format(time.RFC3339),
		Engine:         info.Settings,
		Messages:       info.Messages,
		PendingBatches: info.PendingBatches,
		Subscribers:    info.Subscribers,
	}
}

// lookupSession resolves the session_id URL parameter, writing the error
// response when it does not exist.
func lookupSession(w http.ResponseWriter, r *http.Request, sessions *service.SessionService) (*service.Session, bool) {
	sess, err := sessions.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return sess, true
}

// queryInt parses an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer", name)
	}
	return n, nil
}

func toRecords(msgs []domain.Message) ([]*wire.Record, error) {
	out := make([]*wire.Record, len(msgs))
	for i, m := range msgs {
		rec, err := wire.FromMessage(m)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}
