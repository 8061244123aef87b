package service

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/efreitasn/marketsim/internal/config"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/store"
)

var sessionNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{0,64}$`)

// maxBatchSize bounds the number of input messages of one submission.
const maxBatchSize = 10000

// CreateSessionRequest represents the input for session creation.
type CreateSessionRequest struct {
	Name string
	// Engine overrides the default engine settings when set.
	Engine *config.Engine
}

// SessionInfo summarizes a session.
type SessionInfo struct {
	ID             string
	Name           string
	CreatedAt      time.Time
	Settings       config.Engine
	Messages       int
	PendingBatches int
	Subscribers    int
}

// CloseResult reports what happened to deferred output on close.
type CloseResult struct {
	SessionID string
	Drained   int
	Discarded int
}

// Session is one simulation engine with its output journal. Submissions
// are serialized; reads of the journal do not block them.
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Settings  config.Engine

	mu      sync.Mutex
	engine  *engine.Emulator
	journal *Journal
	hub     *Hub
	clock   func() time.Time
	cancel  context.CancelFunc
	closed  bool
	log     logrus.FieldLogger
}

// SessionService creates, looks up and closes sessions.
type SessionService struct {
	store         *store.SessionStore[*Session]
	defaults      config.Engine
	flushInterval time.Duration
	log           logrus.FieldLogger
	clock         func() time.Time
	newID         func() string
}

// NewSessionService creates a new SessionService. Sessions start from the
// defaults and flush deferred output every flushInterval.
func NewSessionService(defaults config.Engine, flushInterval time.Duration, log logrus.FieldLogger) *SessionService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SessionService{
		store:         store.NewSessionStore[*Session](),
		defaults:      defaults,
		flushInterval: flushInterval,
		log:           log,
		clock:         time.Now,
		newID:         uuid.NewString,
	}
}

// Create validates the request and starts a new session.
func (s *SessionService) Create(req CreateSessionRequest) (*Session, error) {
	if !sessionNameRegex.MatchString(req.Name) {
		return nil, &domain.ValidationError{
			Message: "name must match ^[a-zA-Z0-9_.-]{0,64}$",
		}
	}

	settings := s.defaults
	if req.Engine != nil {
		settings = *req.Engine
	}
	opts, err := settings.Options()
	if err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	id := s.newID()
	sess := &Session{
		ID:        id,
		Name:      req.Name,
		CreatedAt: s.clock(),
		Settings:  settings,
		hub:       NewHub(),
		clock:     s.clock,
		log:       s.log.WithField("session", id),
	}
	sess.journal = NewJournal(sess.hub)
	opts.Logger = sess.log
	opts.Output = sess.journal.Append
	sess.engine = engine.New(opts)

	if err := s.store.Create(id, sess); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	if !settings.VerifyMode && settings.Fault.LatencyMax > 0 && s.flushInterval > 0 {
		sess.engine.Queue().Start(ctx, s.flushInterval, s.clock)
	}

	sess.log.WithFields(logrus.Fields{
		"name":        req.Name,
		"verify_mode": settings.VerifyMode,
	}).Info("session created")
	return sess, nil
}

// Get retrieves a session by id.
func (s *SessionService) Get(id string) (*Session, error) {
	return s.store.Get(id)
}

// List returns a summary of every session ordered by id.
func (s *SessionService) List() []SessionInfo {
	ids := s.store.IDs()
	out := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		sess, err := s.store.Get(id)
		if err != nil {
			continue
		}
		out = append(out, sess.Info())
	}
	return out
}

// Close removes the session, stops its flush loop and drains or discards
// its deferred output.
func (s *SessionService) Close(id string, drain bool) (*CloseResult, error) {
	sess, err := s.store.Delete(id)
	if err != nil {
		return nil, err
	}
	return sess.close(drain), nil
}

// CloseAll closes every session. It is used on host shutdown.
func (s *SessionService) CloseAll(drain bool) {
	for _, id := range s.store.IDs() {
		if _, err := s.Close(id, drain); err != nil {
			s.log.WithError(err).WithField("session", id).Warn("failed to close session")
		}
	}
}

// Info summarizes the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:             s.ID,
		Name:           s.Name,
		CreatedAt:      s.CreatedAt,
		Settings:       s.Settings,
		Messages:       s.journal.Len(),
		PendingBatches: s.engine.PendingBatches(),
		Subscribers:    s.hub.Len(),
	}
}

// Submit processes input messages in order and returns the output they
// produced. Messages without a time are stamped with the current time.
// Output and engine messages are rejected before anything is processed.
func (s *Session) Submit(msgs []domain.Message) ([]domain.Message, error) {
	if len(msgs) == 0 {
		return nil, &domain.ValidationError{Message: "messages must be a non-empty array"}
	}
	if len(msgs) > maxBatchSize {
		return nil, &domain.ValidationError{Message: "too many messages in one submission"}
	}
	for _, m := range msgs {
		switch m.Type() {
		case domain.MessageTypeExecution, domain.MessageTypePositionChange:
			return nil, &domain.ValidationError{Message: "cannot submit " + string(m.Type()) + " messages"}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSessionClosed
	}

	start := s.journal.Len()
	for _, m := range msgs {
		stamp(m, s.clock())
		s.engine.Process(m)
	}
	return s.journal.Read(start, 0), nil
}

// Messages returns journaled output from offset and the offset to continue
// from.
func (s *Session) Messages(offset, limit int) ([]domain.Message, int, error) {
	if offset < 0 {
		return nil, 0, &domain.ValidationError{Message: "offset must be >= 0"}
	}
	if limit < 0 || limit > 1000 {
		return nil, 0, &domain.ValidationError{Message: "limit must be between 0 and 1000"}
	}
	msgs := s.journal.Read(offset, limit)
	next := offset + len(msgs)
	if offset > s.journal.Len() {
		next = offset
	}
	return msgs, next, nil
}

// Subscribe returns a live feed of the session's output.
func (s *Session) Subscribe(buffer int) *Subscription {
	return s.hub.Subscribe(buffer)
}

// Unsubscribe stops a live feed.
func (s *Session) Unsubscribe(sub *Subscription) {
	s.hub.Unsubscribe(sub)
}

func (s *Session) close(drain bool) *CloseResult {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	res := &CloseResult{SessionID: s.ID}
	if drain {
		res.Drained = s.engine.Drain()
	} else {
		res.Discarded = s.engine.Discard()
	}
	s.hub.Close()
	s.log.WithFields(logrus.Fields{
		"drained":   res.Drained,
		"discarded": res.Discarded,
	}).Info("session closed")
	return res
}

// stamp sets the time of messages submitted without one.
func stamp(m domain.Message, now time.Time) {
	if !m.MessageTime().IsZero() {
		return
	}
	switch v := m.(type) {
	case *domain.ResetMessage:
		v.Time = now
	case *domain.FundPositionMessage:
		v.Time = now
	case *domain.QuoteMessage:
		v.Time = now
	case *domain.CandleMessage:
		v.Time = now
	case *domain.OrderRegisterMessage:
		v.Time = now
	case *domain.OrderCancelMessage:
		v.Time = now
	}
}
