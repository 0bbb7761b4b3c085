// Package message defines the envelope pushed by the server and the client-side
// record kept for each processed message.
//
// A UnifiedMessage carries a unique messageId (the deduplication key), a server
// timestamp, one of a closed set of message types and levels, an optional
// priority and TTL, an optional acknowledgement requirement, a type-specific
// payload and optional UI actions. Unknown enumerants are rejected rather than
// passed through.
//
// Frame bodies are checked against a JSON Schema before decoding:
//
//	msg, err := message.Decode(frame.Body)
//	switch errors.KindOf(err) {
//	case errors.KindParseError:      // not JSON
//	case errors.KindInvalidMessage:  // JSON, but not a valid envelope
//	}
//
// TTL on the wire is either a number of milliseconds after the timestamp or an
// RFC 3339 deadline string. A message with no TTL never expires.
//
// Payloads stay as json.RawMessage; the typed accessors (Notification,
// TerminalStatus, CommandFeedback, TaskProgress) decode them on demand and fail if
// the message is of a different type.
package message
