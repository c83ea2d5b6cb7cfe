// ABOUTME: In-memory Conn used by session tests
// ABOUTME: Lets tests feed inbound frames and observe outbound frames with timeouts

package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/protocol"
)

const frameTimeout = 2 * time.Second

type fakeConn struct {
	inbound  chan string
	outbound chan []byte
	closed   chan struct{}

	mu         sync.Mutex
	sendErr    error
	closeCause error
	closeCount int
	hangUp     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan string, 16),
		outbound: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Receive(ctx context.Context) (string, error) {
	select {
	case frame, ok := <-c.inbound:
		if !ok {
			return "", io.EOF
		}
		return frame, nil
	case <-c.closed:
		return "", errors.New("use of closed connection")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *fakeConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	err := c.sendErr
	c.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case c.outbound <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close(cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	if c.closeCount == 1 {
		c.closeCause = cause
		close(c.closed)
	}
	return nil
}

// send queues an inbound frame from the client.
func (c *fakeConn) send(frame string) {
	c.inbound <- frame
}

// hangup simulates the client closing the channel normally.
func (c *fakeConn) hangup() {
	c.hangUp.Do(func() { close(c.inbound) })
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeConn) closes() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount, c.closeCause
}

// next returns the next outbound frame decoded, failing after frameTimeout.
func (c *fakeConn) next(t *testing.T) any {
	t.Helper()
	select {
	case data := <-c.outbound:
		frame, err := protocol.Decode(data)
		require.NoError(t, err)
		return frame
	case <-time.After(frameTimeout):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func (c *fakeConn) nextUsers(t *testing.T) *protocol.UsersFrame {
	t.Helper()
	frame := c.next(t)
	users, ok := frame.(*protocol.UsersFrame)
	require.True(t, ok, "expected users frame, got %T", frame)
	return users
}

func (c *fakeConn) nextMessage(t *testing.T) *protocol.MessageFrame {
	t.Helper()
	frame := c.next(t)
	msg, ok := frame.(*protocol.MessageFrame)
	require.True(t, ok, "expected message frame, got %T", frame)
	return msg
}

func (c *fakeConn) nextHistory(t *testing.T) *protocol.HistoryFrame {
	t.Helper()
	frame := c.next(t)
	hist, ok := frame.(*protocol.HistoryFrame)
	require.True(t, ok, "expected history frame, got %T", frame)
	return hist
}

// expectSilence asserts no frame arrives within a short window.
func (c *fakeConn) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case data := <-c.outbound:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func (c *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(frameTimeout):
		t.Fatal("timed out waiting for close")
	}
}
