package llrp

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// This file implements C2 (the codec): a table-driven encode/decode pair
// per supported message name, plus the primitive cursor/TLV helpers the
// per-message and per-parameter encoders build on.
//
// Parameter framing deliberately does not replicate the EPCglobal standard's
// per-parameter bit layout; what matters here is the codec's shape and
// invariants (nesting, ordering, round-tripping), not a bit-exact wire
// format. Every parameter is therefore encoded as a simple TLV: a 16-bit
// type code, a 16-bit length (counting the 4-byte header itself), then the
// payload. This keeps nesting and optional parameters testable without
// transcribing the EPCglobal bit tables.

const paramHeaderLen = 4

// cursor is a small bounds-checked reader over a byte slice, used while
// decoding parameter payloads.
type cursor struct {
	b []byte
}

func (c *cursor) need(n int) error {
	if len(c.b) < n {
		return errors.Errorf("need %d bytes, have %d", n, len(c.b))
	}
	return nil
}

func (c *cursor) u8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.b[0]
	c.b = c.b[1:]
	return v, nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(c.b[:2])
	c.b = c.b[2:]
	return v, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.b[:4])
	c.b = c.b[4:]
	return v, nil
}

func (c *cursor) u64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(c.b[:8])
	c.b = c.b[8:]
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	v := c.b[:n]
	c.b = c.b[n:]
	return v, nil
}

func (c *cursor) empty() bool { return len(c.b) == 0 }

func putU8(buf *bytes.Buffer, v uint8)   { buf.WriteByte(v) }
func putU16(buf *bytes.Buffer, v uint16) { var t [2]byte; binary.BigEndian.PutUint16(t[:], v); buf.Write(t[:]) }
func putU32(buf *bytes.Buffer, v uint32) { var t [4]byte; binary.BigEndian.PutUint32(t[:], v); buf.Write(t[:]) }
func putU64(buf *bytes.Buffer, v uint64) { var t [8]byte; binary.BigEndian.PutUint64(t[:], v); buf.Write(t[:]) }

// writeParam appends a length-prefixed (type, payload) TLV to buf.
func writeParam(buf *bytes.Buffer, ptype uint16, payload []byte) {
	putU16(buf, ptype)
	putU16(buf, uint16(len(payload)+paramHeaderLen))
	buf.Write(payload)
}

// readParam reads one TLV parameter from the front of b, returning its
// type, payload, and the remaining bytes after it.
func readParam(b []byte) (ptype uint16, payload []byte, rest []byte, err error) {
	c := &cursor{b}
	ptype, err = c.u16()
	if err != nil {
		return 0, nil, nil, err
	}
	length, err := c.u16()
	if err != nil {
		return 0, nil, nil, err
	}
	if length < paramHeaderLen {
		return 0, nil, nil, errors.Errorf("parameter %d has invalid length %d", ptype, length)
	}
	payloadLen := int(length) - paramHeaderLen
	payload, err = c.bytes(payloadLen)
	if err != nil {
		return 0, nil, nil, err
	}
	return ptype, payload, c.b, nil
}

// findParam scans b for the first TLV with the given type, returning its
// payload. Used by decoders that tolerate fields arriving out of order.
func findParam(b []byte, want uint16) ([]byte, bool) {
	for len(b) > 0 {
		ptype, payload, rest, err := readParam(b)
		if err != nil {
			return nil, false
		}
		if ptype == want {
			return payload, true
		}
		b = rest
	}
	return nil, false
}

// forEachParam invokes fn for every top-level TLV in b, in order, stopping
// early if fn returns false.
func forEachParam(b []byte, fn func(ptype uint16, payload []byte) bool) error {
	for len(b) > 0 {
		ptype, payload, rest, err := readParam(b)
		if err != nil {
			return err
		}
		if !fn(ptype, payload) {
			return nil
		}
		b = rest
	}
	return nil
}

func toUint32(v interface{}) uint32 {
	switch n := v.(type) {
	case uint32:
		return n
	case int:
		return uint32(n)
	case int64:
		return uint32(n)
	case uint:
		return uint32(n)
	default:
		return 0
	}
}

func toUint16(v interface{}) uint16 {
	switch n := v.(type) {
	case uint16:
		return n
	case int:
		return uint16(n)
	case uint32:
		return uint16(n)
	default:
		return 0
	}
}

func toUint8(v interface{}) uint8 {
	switch n := v.(type) {
	case uint8:
		return n
	case bool:
		if n {
			return 1
		}
		return 0
	case int:
		return uint8(n)
	default:
		return 0
	}
}

func toBool(v interface{}) bool {
	switch n := v.(type) {
	case bool:
		return n
	case uint8:
		return n != 0
	default:
		return false
	}
}

// encodeLLRPStatus/decodeLLRPStatus implement the LLRPStatus parameter that
// appears in every *_RESPONSE message.
func encodeLLRPStatus(status map[string]interface{}) []byte {
	buf := &bytes.Buffer{}
	code, _ := status["StatusCode"].(string)
	var codeNum uint16
	if code == "" || code == "Success" {
		codeNum = 0
	} else {
		codeNum = 1
	}
	desc, _ := status["ErrorDescription"].(string)
	putU16(buf, codeNum)
	putU16(buf, uint16(len(desc)))
	buf.WriteString(desc)
	return buf.Bytes()
}

func decodeLLRPStatus(b []byte) (map[string]interface{}, error) {
	c := &cursor{b}
	codeNum, err := c.u16()
	if err != nil {
		return nil, err
	}
	descLen, err := c.u16()
	if err != nil {
		return nil, err
	}
	descBytes, err := c.bytes(int(descLen))
	if err != nil {
		return nil, err
	}
	code := "Failure"
	if codeNum == 0 {
		code = "Success"
	}
	return map[string]interface{}{
		"StatusCode":       code,
		"ErrorDescription": string(descBytes),
	}, nil
}

func encodeStatusOnlyResponse(fields map[string]interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	status, _ := fields["LLRPStatus"].(map[string]interface{})
	if status == nil {
		status = map[string]interface{}{"StatusCode": "Success"}
	}
	writeParam(buf, paramLLRPStatus, encodeLLRPStatus(status))
	return buf.Bytes(), nil
}

func decodeStatusOnlyResponse(body []byte) (map[string]interface{}, error) {
	payload, ok := findParam(body, paramLLRPStatus)
	if !ok {
		return nil, errors.New("missing LLRPStatus")
	}
	status, err := decodeLLRPStatus(payload)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"LLRPStatus": status}, nil
}

func encodeSingleIDField(key string) func(map[string]interface{}) ([]byte, error) {
	return func(fields map[string]interface{}) ([]byte, error) {
		buf := &bytes.Buffer{}
		putU32(buf, toUint32(fields[key]))
		return buf.Bytes(), nil
	}
}

func decodeSingleIDField(key string) func([]byte) (map[string]interface{}, error) {
	return func(body []byte) (map[string]interface{}, error) {
		c := &cursor{body}
		id, err := c.u32()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{key: id}, nil
	}
}

func encodeEmpty(map[string]interface{}) ([]byte, error) { return nil, nil }
func decodeEmpty([]byte) (map[string]interface{}, error) { return map[string]interface{}{}, nil }

// encodeFns/decodeFns is the per-message dispatch table, keyed by name.
// Keep in sync with messageType2Name in messages.go.
var encodeFns map[MessageName]func(map[string]interface{}) ([]byte, error)
var decodeFns map[MessageName]func([]byte) (map[string]interface{}, error)

func init() {
	encodeFns = map[MessageName]func(map[string]interface{}) ([]byte, error){
		MsgGetReaderCapabilities:         encodeGetReaderCapabilities,
		MsgGetReaderCapabilitiesResponse: encodeGetReaderCapabilitiesResponse,
		MsgAddROSpec:                     encodeAddROSpec,
		MsgAddROSpecResponse:             encodeStatusOnlyResponse,
		MsgDeleteROSpec:                  encodeSingleIDField("ROSpecID"),
		MsgDeleteROSpecResponse:          encodeStatusOnlyResponse,
		MsgEnableROSpec:                  encodeSingleIDField("ROSpecID"),
		MsgEnableROSpecResponse:          encodeStatusOnlyResponse,
		MsgDisableROSpec:                 encodeSingleIDField("ROSpecID"),
		MsgDisableROSpecResponse:         encodeStatusOnlyResponse,
		MsgAddAccessSpec:                 encodeAddAccessSpec,
		MsgAddAccessSpecResponse:         encodeStatusOnlyResponse,
		MsgDeleteAccessSpec:              encodeSingleIDField("AccessSpecID"),
		MsgDeleteAccessSpecResponse:      encodeStatusOnlyResponse,
		MsgEnableAccessSpec:              encodeSingleIDField("AccessSpecID"),
		MsgEnableAccessSpecResponse:      encodeStatusOnlyResponse,
		MsgDisableAccessSpec:             encodeSingleIDField("AccessSpecID"),
		MsgDisableAccessSpecResponse:     encodeStatusOnlyResponse,
		MsgROAccessReport:                encodeROAccessReport,
		MsgKeepalive:                     encodeEmpty,
		MsgKeepaliveAck:                  encodeEmpty,
		MsgReaderEventNotification:       encodeReaderEventNotification,
	}

	decodeFns = map[MessageName]func([]byte) (map[string]interface{}, error){
		MsgGetReaderCapabilities:         decodeGetReaderCapabilities,
		MsgGetReaderCapabilitiesResponse: decodeGetReaderCapabilitiesResponse,
		MsgAddROSpec:                     decodeAddROSpec,
		MsgAddROSpecResponse:             decodeStatusOnlyResponse,
		MsgDeleteROSpec:                  decodeSingleIDField("ROSpecID"),
		MsgDeleteROSpecResponse:          decodeStatusOnlyResponse,
		MsgEnableROSpec:                  decodeSingleIDField("ROSpecID"),
		MsgEnableROSpecResponse:          decodeStatusOnlyResponse,
		MsgDisableROSpec:                 decodeSingleIDField("ROSpecID"),
		MsgDisableROSpecResponse:         decodeStatusOnlyResponse,
		MsgAddAccessSpec:                 decodeAddAccessSpec,
		MsgAddAccessSpecResponse:         decodeStatusOnlyResponse,
		MsgDeleteAccessSpec:              decodeSingleIDField("AccessSpecID"),
		MsgDeleteAccessSpecResponse:      decodeStatusOnlyResponse,
		MsgEnableAccessSpec:              decodeSingleIDField("AccessSpecID"),
		MsgEnableAccessSpecResponse:      decodeStatusOnlyResponse,
		MsgDisableAccessSpec:             decodeSingleIDField("AccessSpecID"),
		MsgDisableAccessSpecResponse:     decodeStatusOnlyResponse,
		MsgROAccessReport:                decodeROAccessReport,
		MsgKeepalive:                     decodeEmpty,
		MsgKeepaliveAck:                  decodeEmpty,
		MsgReaderEventNotification:       decodeReaderEventNotification,
	}
}

// EncodeMessage serializes a Message to a complete wire frame (header +
// payload), per spec.md §3's round-trip law.
func EncodeMessage(m *Message) ([]byte, error) {
	enc, ok := encodeFns[m.Name]
	if !ok {
		return nil, &UnknownMessageError{Name: string(m.Name)}
	}
	payload, err := enc(m.Fields)
	if err != nil {
		return nil, &CodecError{Message: string(m.Name), Cause: err}
	}
	msgType, ok := messageName2Type[m.Name]
	if !ok {
		return nil, &UnknownMessageError{Name: string(m.Name)}
	}
	ver := m.Ver
	if ver == 0 {
		ver = 1
	}
	return packFrame(ver, msgType, m.ID, payload), nil
}

// DecodeMessage turns a complete frame (as produced by the framing layer)
// into a Message.
func DecodeMessage(raw rawFrame) (*Message, error) {
	name, ok := messageType2Name[raw.Type]
	if !ok {
		return nil, &UnknownMessageError{Type: raw.Type}
	}
	dec, ok := decodeFns[name]
	if !ok {
		return nil, &UnknownMessageError{Name: string(name)}
	}
	fields, err := dec(raw.Payload)
	if err != nil {
		return nil, &CodecError{Message: string(name), Cause: err}
	}
	return &Message{
		Ver:    raw.Ver,
		Type:   raw.Type,
		ID:     raw.ID,
		Name:   name,
		Fields: fields,
	}, nil
}

func encodeGetReaderCapabilities(fields map[string]interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	rd, _ := fields["RequestedData"]
	var code uint8
	if rd == nil {
		code = CapabilityName2Type["All"]
	} else {
		code = toUint8(rd)
	}
	putU8(buf, code)
	return buf.Bytes(), nil
}

func decodeGetReaderCapabilities(body []byte) (map[string]interface{}, error) {
	c := &cursor{body}
	code, err := c.u8()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"RequestedData": code}, nil
}
