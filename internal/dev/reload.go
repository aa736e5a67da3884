package dev

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vango-dev/devserve/internal/errors"
	"github.com/vango-dev/devserve/pkg/middleware"
)

// ReloadMessageType represents the type of reload message.
type ReloadMessageType string

const (
	ReloadTypeFull ReloadMessageType = "reload"
)

// ReloadMessage is sent to browsers via WebSocket.
type ReloadMessage struct {
	Type ReloadMessageType `json:"type"`
}

// Session is one connected browser tab waiting for reload messages.
type Session interface {
	ID() string
	Send(msg ReloadMessage) error
	Close() error
}

// Broadcaster owns the set of connected reload sessions and fans reload
// messages out to them.
type Broadcaster struct {
	mu       sync.RWMutex
	sessions map[Session]struct{}

	logger  *slog.Logger
	metrics *middleware.Metrics
}

// NewBroadcaster creates an empty broadcaster. metrics may be nil.
func NewBroadcaster(logger *slog.Logger, metrics *middleware.Metrics) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		sessions: make(map[Session]struct{}),
		logger:   logger.With("component", "reload"),
		metrics:  metrics,
	}
}

// Register adds a session.
func (b *Broadcaster) Register(s Session) {
	b.mu.Lock()
	b.sessions[s] = struct{}{}
	n := len(b.sessions)
	b.mu.Unlock()

	b.metrics.SetReloadSessions(n)
	b.logger.Debug("session connected", "session", s.ID(), "sessions", n)
}

// Unregister removes a session. Removing an unknown session is a no-op.
// It reports whether the session was registered.
func (b *Broadcaster) Unregister(s Session) bool {
	b.mu.Lock()
	_, ok := b.sessions[s]
	delete(b.sessions, s)
	n := len(b.sessions)
	b.mu.Unlock()

	if ok {
		b.metrics.SetReloadSessions(n)
		b.logger.Debug("session disconnected", "session", s.ID(), "sessions", n)
	}
	return ok
}

// Broadcast delivers msg to every session registered when it is called.
// Sessions are written concurrently; a session whose write fails is
// unregistered and closed without affecting the others. It returns the
// number of successful deliveries.
func (b *Broadcaster) Broadcast(msg ReloadMessage) int {
	b.mu.RLock()
	sessions := make([]Session, 0, len(b.sessions))
	for s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.RUnlock()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
		dropped   int
	)
	for _, s := range sessions {
		wg.Add(1)
		go func(s Session) {
			defer wg.Done()
			if err := s.Send(msg); err != nil {
				b.logger.Debug("dropping session", "session", s.ID(),
					"error", errors.New("E140").Wrap(err))
				if b.Unregister(s) {
					s.Close()
				}
				mu.Lock()
				dropped++
				mu.Unlock()
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(s)
	}
	wg.Wait()

	b.metrics.ObserveBroadcast(delivered, dropped)
	return delivered
}

// NotifyReload sends a full page reload message to all sessions.
func (b *Broadcaster) NotifyReload() int {
	return b.Broadcast(ReloadMessage{Type: ReloadTypeFull})
}

// Count returns the number of connected sessions.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Close closes and removes every session.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[Session]struct{})
	b.mu.Unlock()

	for s := range sessions {
		s.Close()
	}
	b.metrics.SetReloadSessions(0)
}

// writeWait bounds a single reload delivery.
const writeWait = 5 * time.Second

// wsSession is a Session backed by a WebSocket connection.
type wsSession struct {
	id   string
	conn *websocket.Conn

	// gorilla/websocket allows one concurrent writer.
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSSession(conn *websocket.Conn) *wsSession {
	return &wsSession{id: uuid.NewString(), conn: conn}
}

func (s *wsSession) ID() string { return s.id }

func (s *wsSession) Send(msg ReloadMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

func (s *wsSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// upgrader accepts any origin; the server only runs locally.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades the request and keeps the session registered
// until the client goes away.
func (b *Broadcaster) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	// The handshake is written on the hijacked connection, so the policy
	// headers already set on w are passed along explicitly.
	conn, err := upgrader.Upgrade(w, req, w.Header().Clone())
	if err != nil {
		b.logger.Debug("upgrade failed", "error", err)
		return
	}

	s := newWSSession(conn)
	b.Register(s)
	defer func() {
		b.Unregister(s)
		s.Close()
	}()

	// The client never sends anything meaningful; reading only detects
	// disconnects and services control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
