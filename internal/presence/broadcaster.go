// ABOUTME: Broadcasts the full users snapshot to every online peer on presence changes
// ABOUTME: Sits behind the Broadcaster interface so sessions never depend on the fan-out strategy

package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/2389/parley/internal/protocol"
	"github.com/2389/parley/internal/store"
)

// Broadcaster announces presence changes to connected peers.
type Broadcaster interface {
	Broadcast(ctx context.Context) error
}

// SnapshotBroadcaster sends one complete users frame per presence event.
// Each call reads the whole identity registry and presence table, so cost
// grows with the number of online peers; there is no batching or diffing.
type SnapshotBroadcaster struct {
	table    *Table
	registry store.IdentityRegistry
	logger   *slog.Logger
}

// NewSnapshotBroadcaster creates a broadcaster. Pass nil logger for default.
func NewSnapshotBroadcaster(table *Table, registry store.IdentityRegistry, logger *slog.Logger) *SnapshotBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotBroadcaster{
		table:    table,
		registry: registry,
		logger:   logger.With("component", "broadcaster"),
	}
}

// Broadcast pushes {all, online} to every peer currently in the table.
// A failed send to one peer is logged and does not stop the fan-out.
func (b *SnapshotBroadcaster) Broadcast(ctx context.Context) error {
	frame, err := b.UsersFrame(ctx)
	if err != nil {
		return err
	}

	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}

	// Copy peers so no lock is held while writing to the network.
	peers := b.table.Peers()
	for identity, peer := range peers {
		if err := peer.Send(ctx, data); err != nil {
			b.logger.Warn("failed to send users frame",
				"identity", identity,
				"error", err)
		}
	}

	b.logger.Debug("broadcast users",
		"all", len(frame.All),
		"online", len(frame.Online),
		"recipients", len(peers))
	return nil
}

// UsersFrame computes the current users frame without sending it.
// All is the registry in registration order followed by any online identity
// the registry does not yet know.
func (b *SnapshotBroadcaster) UsersFrame(ctx context.Context) (protocol.UsersFrame, error) {
	registered, err := b.registry.ListIdentities(ctx)
	if err != nil {
		return protocol.UsersFrame{}, fmt.Errorf("listing identities: %w", err)
	}
	online := b.table.Snapshot()

	return protocol.NewUsersFrame(union(registered, online), online), nil
}

func union(registered, online []string) []string {
	seen := make(map[string]struct{}, len(registered))
	all := make([]string, 0, len(registered)+len(online))
	for _, id := range registered {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		all = append(all, id)
	}

	var extra []string
	for _, id := range online {
		if _, ok := seen[id]; !ok {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(all, extra...)
}

// Compile-time interface check
var _ Broadcaster = (*SnapshotBroadcaster)(nil)
