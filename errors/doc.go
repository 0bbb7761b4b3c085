// Package errors provides standardized error handling patterns for ledpush components.
//
// # Overview
//
// Two complementary views of an error are supported:
//
//   - Classification (ErrorClass): Transient (retry recommended), Invalid (bad input,
//     do not retry) and Fatal (stop and escalate). Retry loops and the connection
//     manager use this to decide whether to try again.
//   - Kind: the messaging failure taxonomy surfaced to callers of the core. A Kind is
//     one of connection_failed, invalid_message_format, subscription_failed,
//     invalid_topic or message_parse_error.
//
// # Tagged errors
//
// Caller-facing operations return *Error values carrying a Kind and the operation name:
//
//	if state != connection.StateConnected {
//	    return errors.New(errors.KindConnectionFailed, "connection.Send", errors.ErrNotConnected)
//	}
//
// Callers discriminate with KindOf or IsKind, and may still use errors.Is against the
// standard error variables because *Error unwraps:
//
//	if errors.IsKind(err, errors.KindInvalidTopic) {
//	    // reject the destination without retrying
//	}
//	if stderrors.Is(err, errors.ErrNotConnected) {
//	    // wait for the connected state, then subscribe
//	}
//
// # Error Wrapping Pattern
//
// Internal wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// WrapTransient, WrapInvalid and WrapFatal apply the format and fix the classification.
//
// # Thread Safety
//
// All classification and wrapping operations are safe for concurrent use. Error
// variables are immutable.
package errors
