package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/efreitasn/marketsim/internal/service"
	"github.com/efreitasn/marketsim/internal/wire"
)

const (
	streamBuffer = 256
	writeWait    = 5 * time.Second
)

// StreamHandler pushes a session's live output over a websocket, one wire
// record per text frame.
type StreamHandler struct {
	sessions *service.SessionService
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(sessions *service.SessionService, log logrus.FieldLogger) *StreamHandler {
	return &StreamHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log,
	}
}

// Stream handles GET /sessions/{session_id}/stream. The connection ends
// when the client goes away or the session is closed.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sess, ok := lookupSession(w, r, h.sessions)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := sess.Subscribe(streamBuffer)
	defer sess.Unsubscribe(sub)

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log := h.log.WithField("session", sess.ID)
	for {
		select {
		case <-gone:
			return
		case msg, open := <-sub.C:
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			rec, err := wire.FromMessage(msg)
			if err != nil {
				log.WithError(err).Warn("failed to encode stream message")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(rec); err != nil {
				return
			}
		}
	}
}
