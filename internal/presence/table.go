// ABOUTME: Presence table mapping each online identity to its live peer
// ABOUTME: Owned object injected into sessions; every operation is individually atomic

package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Peer is the outbound half of a live connection.
// Implementations must be comparable (typically a pointer type) because
// Remove matches peers by identity.
type Peer interface {
	Send(ctx context.Context, data []byte) error
}

// Table tracks which identities are reachable right now.
// At most one peer is held per identity; the last Put wins.
type Table struct {
	peers  map[string]Peer
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewTable creates an empty presence table. Pass nil logger for default.
func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		peers:  make(map[string]Peer),
		logger: logger.With("component", "presence"),
	}
}

// Put makes peer the live peer for identity, overwriting any earlier one.
// The replaced peer, if any, is returned so the caller can log the takeover.
func (t *Table) Put(identity string, peer Peer) Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.peers[identity]
	t.peers[identity] = peer

	t.logger.Info("=== IDENTITY ONLINE ===",
		"identity", identity,
		"replaced", prev != nil,
		"total_online", len(t.peers),
	)
	return prev
}

// Remove deletes identity's entry only while it still points at peer.
// A newer connection that already replaced peer keeps its entry.
// Returns true when an entry was removed.
func (t *Table) Remove(identity string, peer Peer) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.peers[identity]
	if !ok {
		return false
	}
	if current != peer {
		t.logger.Debug("skipping removal of replaced peer", "identity", identity)
		return false
	}

	delete(t.peers, identity)
	t.logger.Info("=== IDENTITY OFFLINE ===",
		"identity", identity,
		"total_online", len(t.peers),
	)
	return true
}

// Get returns the live peer for identity.
func (t *Table) Get(identity string) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	peer, ok := t.peers[identity]
	return peer, ok
}

// Snapshot returns the online identities in sorted order.
func (t *Table) Snapshot() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Peers returns a copy of the identity to peer mapping.
func (t *Table) Peers() map[string]Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	peers := make(map[string]Peer, len(t.peers))
	for id, p := range t.peers {
		peers[id] = p
	}
	return peers
}

// Len returns the number of online identities.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}
