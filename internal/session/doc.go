// Package session owns the lifecycle of every client connection.
//
// # Lifecycle
//
// A connection starts in Connecting. Its first frame is taken as the identity:
// the identity is registered, the session is placed in the presence table and a
// users snapshot is broadcast. The session is then Active and processes frames
// one at a time, in arrival order, until the channel closes, the server shuts
// down, or a command fails. Teardown then runs exactly once: the presence entry
// is removed (only if it still belongs to this session), another snapshot is
// broadcast and the channel is closed. Closed is terminal.
//
// # Commands
//
//   - TO|recipient|text: the message is persisted first, then pushed to the
//     recipient if it is online. Offline recipients find it in their history.
//   - HISTORY|other: the full conversation with other is sent back.
//
// # Errors
//
// ErrHandshakeFailed, ErrMalformedCommand, ErrCollaboratorUnavailable and
// ErrChannelFault end the offending session only. Nothing is written back to
// the client; the connection is simply closed.
package session
