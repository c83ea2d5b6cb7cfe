// ABOUTME: Error taxonomy for session lifecycle failures
// ABOUTME: Every error here ends only the offending session and never reaches other sessions

package session

import (
	"errors"

	"github.com/2389/parley/internal/protocol"
)

var (
	// ErrHandshakeFailed indicates the channel closed before the identity frame arrived.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrCollaboratorUnavailable indicates a store or registry call failed.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrChannelFault indicates a transport-level send or receive failure.
	ErrChannelFault = errors.New("channel fault")

	// ErrMalformedCommand is re-exported so callers can classify session errors
	// without importing the protocol package.
	ErrMalformedCommand = protocol.ErrMalformedCommand
)
