// Package store provides durable storage for parley.
//
// # Architecture
//
// Two small interfaces describe what the session layer consumes:
//
//   - IdentityRegistry: the set of every identity that ever completed a handshake
//   - ConversationStore: conversations keyed by an unordered identity pair, each
//     holding an append-only, ordered message sequence
//
// Store combines both with Ping and Close. Three implementations exist:
//
//   - SQLiteStore: the default, backed by modernc.org/sqlite through sqlx
//   - PostgresStore: lib/pq with squirrel-built queries; schema via golang-migrate
//   - MockStore: in-memory, for tests, with failure injection
//
// # Pairs
//
// A conversation between "alice" and "bob" is the same record as the one between
// "bob" and "alice". CanonicalPair orders the two identities, and the ordered
// (participant_a, participant_b) columns carry a UNIQUE constraint. The identities
// are never joined into one string, so no two distinct pairs can share a row
// whatever bytes an identity contains. FindOrCreateConversation inserts with
// ON CONFLICT DO NOTHING before reading back, so concurrent first contact between
// the same pair converges on one conversation.
//
// # Message Order
//
// Every message receives a store-wide increasing sequence number on insert
// (Message.Position). Listing a conversation orders by that sequence, so append
// order is chronological order.
package store
