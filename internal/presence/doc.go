// Package presence tracks which identities are reachable and tells everyone.
//
// Table is the single source of truth for "who is online". It is an owned value
// created once by the gateway and handed to the session manager; nothing else
// mutates it. Removal is conditional on the caller's own peer, so a teardown that
// races with a reconnect under the same identity cannot evict the newer
// connection.
//
// Broadcaster is the seam between sessions and fan-out policy.
// SnapshotBroadcaster sends the complete {all, online} users frame to every
// online peer after each change. That is O(online) work per event with no
// coalescing, which is fine for small deployments and can later be replaced by
// an incremental implementation without touching session logic.
package presence
