// ABOUTME: Tests for the Gateway orchestrator lifecycle and end-to-end WebSocket sessions
// ABOUTME: Runs real servers on free ports and drives them with WebSocket and gRPC clients

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/protocol"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/transport"
)

// freeAddr returns a loopback address with an available port.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// testConfig creates a minimal config for testing with available ports.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.HTTPAddr = freeAddr(t)
	cfg.Server.GRPCAddr = freeAddr(t)
	cfg.Database.Path = ":memory:"
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// client wraps a dialed connection with helpers for reading typed frames.
type client struct {
	t    *testing.T
	conn *transport.Conn
}

func dial(t *testing.T, url, identity string) *client {
	t.Helper()
	conn, err := transport.Dial(t.Context(), url, transport.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(nil) })

	require.NoError(t, conn.Send(t.Context(), []byte(identity)))
	return &client{t: t, conn: conn}
}

func (c *client) send(frame string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.Send(c.t.Context(), []byte(frame)))
}

func (c *client) next() any {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(c.t.Context(), 5*time.Second)
	defer cancel()

	data, err := c.conn.Receive(ctx)
	require.NoError(c.t, err)
	frame, err := protocol.Decode([]byte(data))
	require.NoError(c.t, err)
	return frame
}

func (c *client) nextUsers() *protocol.UsersFrame {
	c.t.Helper()
	frame := c.next()
	users, ok := frame.(*protocol.UsersFrame)
	require.True(c.t, ok, "expected users frame, got %T", frame)
	return users
}

func (c *client) nextMessage() *protocol.MessageFrame {
	c.t.Helper()
	frame := c.next()
	msg, ok := frame.(*protocol.MessageFrame)
	require.True(c.t, ok, "expected message frame, got %T", frame)
	return msg
}

func (c *client) nextHistory() *protocol.HistoryFrame {
	c.t.Helper()
	frame := c.next()
	hist, ok := frame.(*protocol.HistoryFrame)
	require.True(c.t, ok, "expected history frame, got %T", frame)
	return hist
}

// startTestServer serves the gateway handler on an httptest server and returns
// the gateway and its WebSocket URL.
func startTestServer(t *testing.T) (*Gateway, string) {
	t.Helper()
	cfg := testConfig(t)
	s, err := store.NewSQLiteStore(t.TempDir() + "/parley.db")
	require.NoError(t, err)

	gw := NewWithStore(cfg, s, testLogger())
	ts := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})

	return gw, "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.Server.WSPath
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	assert.Same(t, cfg, gw.config)
	assert.NotNil(t, gw.store)
	assert.NotNil(t, gw.presence)
	assert.NotNil(t, gw.sessions)
	assert.NotNil(t, gw.grpcServer)
}

func TestGatewayNew_WithoutGRPC(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.GRPCAddr = ""

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	assert.Nil(t, gw.grpcServer)
	assert.Nil(t, gw.health)
}

func TestGatewayNew_DBPathFromEnv(t *testing.T) {
	dbPath := t.TempDir() + "/env.db"
	t.Setenv("PARLEY_DB_PATH", dbPath)

	cfg := testConfig(t)
	cfg.Database.Path = "/nonexistent/should/not/be/used.db"

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	require.NoError(t, gw.store.RegisterIdentity(t.Context(), "alice"))
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	// Wait for the HTTP listener.
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGatewayRun_GRPCHealth(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = gw.Run(ctx) }()

	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		checkCtx, checkCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer checkCancel()
		resp, err := client.Check(checkCtx, &healthpb.HealthCheckRequest{Service: healthServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 50*time.Millisecond)
}

func TestGatewayRun_ShutdownEndsSessions(t *testing.T) {
	cfg := testConfig(t)

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- gw.Run(ctx) }()

	url := "ws://" + cfg.Server.HTTPAddr + cfg.Server.WSPath
	var conn *transport.Conn
	require.Eventually(t, func() bool {
		conn, err = transport.Dial(t.Context(), url, transport.Options{})
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer conn.Close(nil)

	require.NoError(t, conn.Send(t.Context(), []byte("alice")))
	_, err = conn.Receive(t.Context())
	require.NoError(t, err, "users frame")

	cancel()

	// The session ends on shutdown, so the client read fails instead of hanging.
	recvCtx, recvCancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer recvCancel()
	_, err = conn.Receive(recvCtx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("gateway did not shutdown in time")
	}
}

func TestEndToEnd_AliceAndBob(t *testing.T) {
	gw, url := startTestServer(t)

	alice := dial(t, url, "alice")
	users := alice.nextUsers()
	assert.Equal(t, []string{"alice"}, users.Online)

	bob := dial(t, url, "bob")
	for _, c := range []*client{alice, bob} {
		users := c.nextUsers()
		assert.ElementsMatch(t, []string{"alice", "bob"}, users.All)
		assert.ElementsMatch(t, []string{"alice", "bob"}, users.Online)
	}

	alice.send("TO|bob|hello")
	msg := bob.nextMessage()
	assert.Equal(t, "alice", msg.From)
	assert.Equal(t, "hello", msg.Message)
	assert.Regexp(t, `^\d{2}:\d{2}$`, msg.Time)

	require.NoError(t, bob.conn.Close(nil))

	users = alice.nextUsers()
	assert.Equal(t, []string{"alice"}, users.Online)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users.All)

	alice.send("HISTORY|bob")
	hist := alice.nextHistory()
	assert.Equal(t, "bob", hist.With)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "alice", hist.Messages[0].From)
	assert.Equal(t, "hello", hist.Messages[0].Text)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, hist.Messages[0].Date)

	assert.Equal(t, 1, gw.presence.Len())
}

func TestEndToEnd_MalformedCommandClosesConnection(t *testing.T) {
	_, url := startTestServer(t)

	alice := dial(t, url, "alice")
	alice.nextUsers()

	alice.send("NOPE")

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	_, err := alice.conn.Receive(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF, "closed with policy violation, not a normal close")
}

func TestEndToEnd_ConcurrentFirstContact(t *testing.T) {
	gw, url := startTestServer(t)

	const pairs = 5
	var wg sync.WaitGroup
	for i := range pairs {
		a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
		ca := dial(t, url, a)
		cb := dial(t, url, b)

		wg.Add(2)
		go func() {
			defer wg.Done()
			ca.send(protocol.FormatSend(b, "hi from "+a))
		}()
		go func() {
			defer wg.Done()
			cb.send(protocol.FormatSend(a, "hi from "+b))
		}()
	}
	wg.Wait()

	for i := range pairs {
		a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
		require.Eventually(t, func() bool {
			conv, err := gw.store.GetConversation(t.Context(), a, b)
			if err != nil {
				return false
			}
			msgs, err := gw.store.ListMessages(t.Context(), conv.ID)
			return err == nil && len(msgs) == 2
		}, 5*time.Second, 20*time.Millisecond)

		convs, err := gw.store.ListConversations(t.Context(), a)
		require.NoError(t, err)
		assert.Len(t, convs, 1, "pair %d must share one conversation", i)
	}
}
