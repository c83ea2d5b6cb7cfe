// ABOUTME: Server-to-client JSON frames discriminated by a "type" field
// ABOUTME: Also fixes the wall-clock formats used for message time and date

package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame type discriminators.
const (
	TypeUsers   = "users"
	TypeMessage = "message"
	TypeHistory = "history"
)

// Wall-clock layouts for message timestamps.
const (
	TimeLayout = "15:04"
	DateLayout = "2006-01-02"
)

// UsersFrame lists every known identity and the ones online right now.
type UsersFrame struct {
	Type   string   `json:"type"`
	All    []string `json:"all"`
	Online []string `json:"online"`
}

// MessageFrame is pushed to an online recipient when a message arrives.
type MessageFrame struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// HistoryEntry is one message in a HistoryFrame.
type HistoryEntry struct {
	From string `json:"from"`
	Text string `json:"text"`
	Time string `json:"time"`
	Date string `json:"date"`
}

// HistoryFrame answers a HISTORY request with the whole conversation.
type HistoryFrame struct {
	Type     string         `json:"type"`
	With     string         `json:"with"`
	Messages []HistoryEntry `json:"messages"`
}

// NewUsersFrame builds a users frame. Nil slices encode as empty arrays.
func NewUsersFrame(all, online []string) UsersFrame {
	if all == nil {
		all = []string{}
	}
	if online == nil {
		online = []string{}
	}
	return UsersFrame{Type: TypeUsers, All: all, Online: online}
}

// NewMessageFrame builds a direct-message push.
func NewMessageFrame(from, text, hhmm string) MessageFrame {
	return MessageFrame{Type: TypeMessage, From: from, Message: text, Time: hhmm}
}

// NewHistoryFrame builds a history reply. Nil entries encode as an empty array.
func NewHistoryFrame(with string, entries []HistoryEntry) HistoryFrame {
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return HistoryFrame{Type: TypeHistory, With: with, Messages: entries}
}

// Encode marshals a frame for the wire.
func Encode(frame any) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return data, nil
}

// Envelope is the common prefix of every server frame, used by clients to
// pick the concrete type before decoding the rest.
type Envelope struct {
	Type string `json:"type"`
}

// Decode parses a server frame into its concrete type.
// It returns *UsersFrame, *MessageFrame or *HistoryFrame.
func Decode(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding frame envelope: %w", err)
	}

	var frame any
	switch env.Type {
	case TypeUsers:
		frame = &UsersFrame{}
	case TypeMessage:
		frame = &MessageFrame{}
	case TypeHistory:
		frame = &HistoryFrame{}
	default:
		return nil, fmt.Errorf("unknown frame type %q", env.Type)
	}

	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("decoding %s frame: %w", env.Type, err)
	}
	return frame, nil
}

// FormatTime renders t as HH:MM in t's location.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// FormatDate renders t as YYYY-MM-DD in t's location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
