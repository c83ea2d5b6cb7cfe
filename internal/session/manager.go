// ABOUTME: Session manager owning each connection from handshake through teardown
// ABOUTME: Dispatches TO| and HISTORY| commands against the store and presence table

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/parley/internal/presence"
	"github.com/2389/parley/internal/protocol"
	"github.com/2389/parley/internal/store"
)

// teardownTimeout bounds the broadcast sent while a session closes. It runs on
// a context detached from the session's own, which may already be cancelled.
const teardownTimeout = 5 * time.Second

// Store is the subset of persistence the manager depends on.
type Store interface {
	store.IdentityRegistry
	store.ConversationStore
}

// Manager runs sessions. One Manager serves every connection in the process.
type Manager struct {
	table       *presence.Table
	store       Store
	broadcaster presence.Broadcaster
	logger      *slog.Logger
	now         func() time.Time

	active atomic.Int64
	wg     sync.WaitGroup
}

// NewManager creates a Manager around an owned presence table.
func NewManager(table *presence.Table, st Store, broadcaster presence.Broadcaster, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		table:       table,
		store:       st,
		broadcaster: broadcaster,
		logger:      logger.With("component", "session"),
		now:         time.Now,
	}
}

// Serve runs one connection to completion: handshake, then frames in arrival
// order until the channel closes, ctx is cancelled, or a command fails.
// Teardown always runs once a handshake succeeded. A clean close or
// cancellation returns nil; any other error is returned after it was logged,
// so the caller only uses it to pick a close status.
func (m *Manager) Serve(ctx context.Context, conn Conn) error {
	m.wg.Add(1)
	defer m.wg.Done()

	sess, err := m.Handshake(ctx, conn)
	if err != nil {
		m.logger.Debug("handshake did not complete", "error", err)
		_ = conn.Close(err)
		return err
	}

	m.active.Add(1)
	defer m.active.Add(-1)

	err = m.run(ctx, sess)
	cause := err
	if err != nil {
		sess.logger.Warn("session ended with error", "error", err)
	} else if ctx.Err() != nil {
		cause = ctx.Err()
	}
	m.Teardown(sess, cause)
	return err
}

// Handshake reads the identity frame, registers the identity, publishes it in
// the presence table and broadcasts the new users snapshot.
func (m *Manager) Handshake(ctx context.Context, conn Conn) (*Session, error) {
	identity, err := conn.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: awaiting identity: %w", ErrHandshakeFailed, err)
	}

	if err := m.store.RegisterIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("%w: registering identity: %w", ErrCollaboratorUnavailable, err)
	}

	sess := newSession(identity, conn, m.logger, m.now())
	if replaced := m.table.Put(identity, sess); replaced != nil {
		sess.logger.Info("identity reconnected, replacing previous session")
	}
	sess.setState(StateActive)

	if err := m.broadcaster.Broadcast(ctx); err != nil {
		sess.logger.Warn("failed to broadcast users", "error", err)
	}

	sess.logger.Info("session started")
	return sess, nil
}

// Teardown removes the session from presence, broadcasts and releases the
// channel. It runs at most once per session; later calls are no-ops.
func (m *Manager) Teardown(sess *Session, cause error) {
	sess.teardown.Do(func() {
		sess.setState(StateClosed)

		m.table.Remove(sess.Identity, sess)

		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := m.broadcaster.Broadcast(ctx); err != nil {
			sess.logger.Warn("failed to broadcast users", "error", err)
		}

		if err := sess.conn.Close(cause); err != nil {
			sess.logger.Debug("closing channel", "error", err)
		}

		sess.logger.Info("session closed",
			"duration", m.now().Sub(sess.ConnectedAt).Round(time.Second),
		)
	})
}

func (m *Manager) run(ctx context.Context, sess *Session) error {
	for {
		frame, err := sess.conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: receiving frame: %w", ErrChannelFault, err)
		}

		if err := m.Dispatch(ctx, sess, frame); err != nil {
			return err
		}
	}
}

// Dispatch parses one frame and applies the command it carries.
func (m *Manager) Dispatch(ctx context.Context, sess *Session, frame string) error {
	cmd, err := protocol.ParseCommand(frame)
	if err != nil {
		return err
	}

	switch c := cmd.(type) {
	case protocol.Send:
		return m.handleSend(ctx, sess, c)
	case protocol.History:
		return m.handleHistory(ctx, sess, c)
	default:
		return fmt.Errorf("%w: unhandled command %T", ErrMalformedCommand, cmd)
	}
}

// handleSend persists the message and then pushes it to the recipient if online.
func (m *Manager) handleSend(ctx context.Context, sess *Session, cmd protocol.Send) error {
	now := m.now()

	conv, err := m.store.FindOrCreateConversation(ctx, sess.Identity, cmd.To)
	if err != nil {
		return fmt.Errorf("%w: finding conversation: %w", ErrCollaboratorUnavailable, err)
	}

	msg := &store.Message{
		From:      sess.Identity,
		Text:      cmd.Text,
		Time:      protocol.FormatTime(now),
		Date:      protocol.FormatDate(now),
		CreatedAt: now,
	}
	if err := m.store.AppendMessage(ctx, conv.ID, msg); err != nil {
		return fmt.Errorf("%w: appending message: %w", ErrCollaboratorUnavailable, err)
	}

	peer, online := m.table.Get(cmd.To)
	if !online {
		sess.logger.Debug("recipient offline, message stored only", "to", cmd.To)
		return nil
	}

	data, err := protocol.Encode(protocol.NewMessageFrame(sess.Identity, cmd.Text, msg.Time))
	if err != nil {
		return err
	}
	if err := peer.Send(ctx, data); err != nil {
		// The recipient's own session notices its broken channel.
		sess.logger.Warn("failed to deliver message", "to", cmd.To, "error", err)
		return nil
	}

	sess.logger.Debug("message delivered", "to", cmd.To, "message_id", msg.ID)
	return nil
}

// handleHistory replies with every message exchanged with cmd.With.
func (m *Manager) handleHistory(ctx context.Context, sess *Session, cmd protocol.History) error {
	conv, err := m.store.FindOrCreateConversation(ctx, sess.Identity, cmd.With)
	if err != nil {
		return fmt.Errorf("%w: finding conversation: %w", ErrCollaboratorUnavailable, err)
	}

	msgs, err := m.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("%w: listing messages: %w", ErrCollaboratorUnavailable, err)
	}

	entries := make([]protocol.HistoryEntry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, protocol.HistoryEntry{
			From: msg.From,
			Text: msg.Text,
			Time: msg.Time,
			Date: msg.Date,
		})
	}

	data, err := protocol.Encode(protocol.NewHistoryFrame(cmd.With, entries))
	if err != nil {
		return err
	}
	if err := sess.Send(ctx, data); err != nil {
		return err
	}

	sess.logger.Debug("history sent", "with", cmd.With, "messages", len(entries))
	return nil
}

// Active returns the number of sessions past their handshake.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// Wait blocks until every Serve call has returned or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
