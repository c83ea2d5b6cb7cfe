// ABOUTME: Parses inbound client frames into Send and History commands
// ABOUTME: Frames are pipe-delimited text; only the leading fields are split

package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates the fields of a client command frame.
const Delimiter = "|"

// Command prefixes recognized in client frames.
const (
	PrefixSend    = "TO"
	PrefixHistory = "HISTORY"
)

// ErrMalformedCommand indicates a frame that is neither a well-formed TO| nor HISTORY| command.
var ErrMalformedCommand = errors.New("malformed command")

// Command is a parsed client frame. It is either Send or History.
type Command interface {
	command()
}

// Send asks the server to deliver Text to the identity To.
type Send struct {
	To   string
	Text string
}

// History asks for the full message sequence shared with the identity With.
type History struct {
	With string
}

func (Send) command()    {}
func (History) command() {}

// ParseCommand parses a client frame sent after the identity handshake.
//
// "TO|<recipient>|<text>" splits on the first two delimiters only, so text may
// itself contain pipes. "HISTORY|<other>" takes everything after the first
// delimiter as the identity.
func ParseCommand(frame string) (Command, error) {
	prefix, rest, found := strings.Cut(frame, Delimiter)
	if !found {
		return nil, fmt.Errorf("%w: missing delimiter", ErrMalformedCommand)
	}

	switch prefix {
	case PrefixSend:
		to, text, ok := strings.Cut(rest, Delimiter)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs recipient and text", ErrMalformedCommand, PrefixSend)
		}
		return Send{To: to, Text: text}, nil

	case PrefixHistory:
		return History{With: rest}, nil

	default:
		return nil, fmt.Errorf("%w: unknown prefix %q", ErrMalformedCommand, prefix)
	}
}

// FormatSend renders a Send command as a client frame.
func FormatSend(to, text string) string {
	return PrefixSend + Delimiter + to + Delimiter + text
}

// FormatHistory renders a History command as a client frame.
func FormatHistory(with string) string {
	return PrefixHistory + Delimiter + with
}
