// ABOUTME: Session represents one connected identity and its channel
// ABOUTME: Tracks the Connecting -> Active -> Closed state machine and doubles as the presence peer

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is the bidirectional text channel a session runs over.
type Conn interface {
	// Receive blocks until the next inbound frame. It returns io.EOF when the
	// peer closes the channel normally.
	Receive(ctx context.Context) (string, error)

	// Send writes one outbound frame. It must be safe for concurrent use.
	Send(ctx context.Context, data []byte) error

	// Close releases the channel. cause is nil for a normal close, otherwise
	// the error that ended the session.
	Close(cause error) error
}

// State is the lifecycle state of a session.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is one connection that completed the identity handshake.
type Session struct {
	ID          string
	Identity    string
	ConnectedAt time.Time

	conn   Conn
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	teardown sync.Once
}

func newSession(identity string, conn Conn, logger *slog.Logger, now time.Time) *Session {
	id := uuid.New().String()
	return &Session{
		ID:          id,
		Identity:    identity,
		ConnectedAt: now,
		conn:        conn,
		logger:      logger.With("session_id", id, "identity", identity),
		state:       StateConnecting,
	}
}

// Send writes a frame to the session's channel.
func (s *Session) Send(ctx context.Context, data []byte) error {
	if err := s.conn.Send(ctx, data); err != nil {
		return fmt.Errorf("%w: sending to %s: %w", ErrChannelFault, s.Identity, err)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState moves the session forward. Closed is terminal.
func (s *Session) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = next
}
