package llrp

import (
	"fmt"

	"github.com/pkg/errors"
)

// FramingError signals a malformed frame header: a length field shorter than
// the header or larger than the maximum frame size. Fatal for the connection.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("llrp: framing error: %s", e.Reason)
}

// UnknownMessageError is returned when the codec has no encoder/decoder for
// a message name (on encode) or type code (on decode). Logged and dropped;
// the connection continues.
type UnknownMessageError struct {
	Name string
	Type uint16
}

func (e *UnknownMessageError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("llrp: unknown message name %q", e.Name)
	}
	return fmt.Sprintf("llrp: unknown message type %d", e.Type)
}

// CodecError signals a structural failure while decoding a message's
// payload. Only the offending frame is dropped; the read loop goes on with
// the next frame on the same connection (see DESIGN.md open question (a)).
type CodecError struct {
	Message string
	Cause   error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("llrp: codec error in %s: %v", e.Message, e.Cause)
}

func (e *CodecError) Unwrap() error { return e.Cause }

// CapabilityMismatchError signals that no antenna in the requested set, or
// no RF mode, could be matched against the reader's reported capabilities.
type CapabilityMismatchError struct {
	Reason string
}

func (e *CapabilityMismatchError) Error() string {
	return fmt.Sprintf("llrp: capability mismatch: %s", e.Reason)
}

// InvalidTxPowerError signals a requested transmit-power index outside the
// reader's power table.
type InvalidTxPowerError struct {
	Requested, Min, Max int
}

func (e *InvalidTxPowerError) Error() string {
	return fmt.Sprintf("llrp: invalid tx_power: requested=%d, min_available=%d, max_available=%d",
		e.Requested, e.Min, e.Max)
}

// ProtocolStateError wraps a response carrying a non-Success LLRPStatus.
type ProtocolStateError struct {
	Message          MessageName
	StatusCode       string
	ErrorDescription string
	Fatal            bool
}

func (e *ProtocolStateError) Error() string {
	return fmt.Sprintf("llrp: %s failed with status %s: %s", e.Message, e.StatusCode, e.ErrorDescription)
}

// isFatalResponse classifies a failed response by the name of the request
// whose response carried the non-Success status. GET_READER_CAPABILITIES,
// ADD_ROSPEC, and ENABLE_ROSPEC failures halt the state machine and close
// the connection; DISABLE_ROSPEC, DELETE_ROSPEC, and DELETE_ACCESSSPEC
// failures are warnings only — teardown is best-effort, so the state
// machine advances exactly as it would on success. Everything else
// (including DISABLE_ACCESSSPEC, which nextAccess treats as fatal per
// DESIGN.md's open-question resolution) defaults to fatal: the failure is
// logged and the request sequence stops, but the connection stays open.
func isFatalResponse(name MessageName) bool {
	switch name {
	case MsgDisableROSpecResponse, MsgDeleteROSpecResponse, MsgDeleteAccessSpecResponse:
		return false
	default:
		return true
	}
}

// ConnectTimeoutError signals that a TCP dial did not complete within the
// configured timeout.
type ConnectTimeoutError struct {
	Addr string
}

func (e *ConnectTimeoutError) Error() string {
	return fmt.Sprintf("llrp: connect to %s timed out", e.Addr)
}

// ErrClientClosed is the error Close delivers to every continuation still
// pending on a Conn.
var ErrClientClosed = errors.New("llrp: client closed")

// errNoContinuation names the "no continuation registered" condition, which
// is not an error (see spec.md §4.5). Nothing in the package returns it:
// continuationRegistry.fire reports that case by returning false.
var errNoContinuation = errors.New("llrp: no continuation registered")
