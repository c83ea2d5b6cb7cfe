// Package protocol defines the parley wire format.
//
// Clients send plain text frames. The first frame on a connection is the raw
// identity; every later frame is a pipe-delimited command:
//
//	TO|<recipient>|<text>
//	HISTORY|<other>
//
// The server answers with JSON objects carrying a "type" discriminator:
// "users" on presence changes, "message" for a live direct message and
// "history" in reply to HISTORY.
package protocol
