package llrp

// MessageName identifies an LLRP message kind drawn from the closed set the
// codec supports (spec.md §6). It is the key used throughout the state
// machine, continuation registry, and callback fan-out tables.
type MessageName string

// Message names supported by this codec. Unexported response/request pairs
// not listed here are rejected with UnknownMessageError.
const (
	MsgGetReaderCapabilities         MessageName = "GET_READER_CAPABILITIES"
	MsgGetReaderCapabilitiesResponse MessageName = "GET_READER_CAPABILITIES_RESPONSE"
	MsgAddROSpec                     MessageName = "ADD_ROSPEC"
	MsgAddROSpecResponse             MessageName = "ADD_ROSPEC_RESPONSE"
	MsgDeleteROSpec                  MessageName = "DELETE_ROSPEC"
	MsgDeleteROSpecResponse          MessageName = "DELETE_ROSPEC_RESPONSE"
	MsgEnableROSpec                  MessageName = "ENABLE_ROSPEC"
	MsgEnableROSpecResponse          MessageName = "ENABLE_ROSPEC_RESPONSE"
	MsgDisableROSpec                 MessageName = "DISABLE_ROSPEC"
	MsgDisableROSpecResponse         MessageName = "DISABLE_ROSPEC_RESPONSE"
	MsgAddAccessSpec                 MessageName = "ADD_ACCESSSPEC"
	MsgAddAccessSpecResponse         MessageName = "ADD_ACCESSSPEC_RESPONSE"
	MsgDeleteAccessSpec              MessageName = "DELETE_ACCESSSPEC"
	MsgDeleteAccessSpecResponse      MessageName = "DELETE_ACCESSSPEC_RESPONSE"
	MsgEnableAccessSpec              MessageName = "ENABLE_ACCESSSPEC"
	MsgEnableAccessSpecResponse      MessageName = "ENABLE_ACCESSSPEC_RESPONSE"
	MsgDisableAccessSpec             MessageName = "DISABLE_ACCESSSPEC"
	MsgDisableAccessSpecResponse     MessageName = "DISABLE_ACCESSSPEC_RESPONSE"
	MsgROAccessReport                MessageName = "RO_ACCESS_REPORT"
	MsgKeepalive                     MessageName = "KEEPALIVE"
	MsgKeepaliveAck                  MessageName = "KEEPALIVE_ACK"
	MsgReaderEventNotification       MessageName = "READER_EVENT_NOTIFICATION"
)

// Message type codes, per spec.md §6 (the LLRP 1.x wire values).
const (
	TypeGetReaderCapabilities         uint16 = 1
	TypeGetReaderCapabilitiesResponse uint16 = 11
	TypeAddROSpec                     uint16 = 20
	TypeDeleteROSpec                  uint16 = 21
	TypeEnableROSpec                  uint16 = 24
	TypeDisableROSpec                 uint16 = 25
	TypeAddROSpecResponse             uint16 = 30
	TypeDeleteROSpecResponse          uint16 = 31
	TypeEnableROSpecResponse          uint16 = 34
	TypeDisableROSpecResponse         uint16 = 35
	TypeAddAccessSpec                 uint16 = 40
	TypeDeleteAccessSpec              uint16 = 41
	TypeEnableAccessSpec              uint16 = 42
	TypeDisableAccessSpec             uint16 = 43
	TypeAddAccessSpecResponse         uint16 = 50
	TypeDeleteAccessSpecResponse      uint16 = 51
	TypeEnableAccessSpecResponse      uint16 = 52
	TypeDisableAccessSpecResponse     uint16 = 53
	TypeROAccessReport                uint16 = 61
	TypeKeepalive                     uint16 = 62
	TypeReaderEventNotification       uint16 = 63
	TypeKeepaliveAck                  uint16 = 72
)

// messageType2Name and messageName2Type are the bidirectional maps the
// codec exposes, mirroring the original's Message_Type2Name table.
var messageType2Name = map[uint16]MessageName{
	TypeGetReaderCapabilities:         MsgGetReaderCapabilities,
	TypeGetReaderCapabilitiesResponse: MsgGetReaderCapabilitiesResponse,
	TypeAddROSpec:                     MsgAddROSpec,
	TypeAddROSpecResponse:             MsgAddROSpecResponse,
	TypeDeleteROSpec:                  MsgDeleteROSpec,
	TypeDeleteROSpecResponse:          MsgDeleteROSpecResponse,
	TypeEnableROSpec:                  MsgEnableROSpec,
	TypeEnableROSpecResponse:          MsgEnableROSpecResponse,
	TypeDisableROSpec:                 MsgDisableROSpec,
	TypeDisableROSpecResponse:         MsgDisableROSpecResponse,
	TypeAddAccessSpec:                 MsgAddAccessSpec,
	TypeAddAccessSpecResponse:         MsgAddAccessSpecResponse,
	TypeDeleteAccessSpec:              MsgDeleteAccessSpec,
	TypeDeleteAccessSpecResponse:      MsgDeleteAccessSpecResponse,
	TypeEnableAccessSpec:              MsgEnableAccessSpec,
	TypeEnableAccessSpecResponse:      MsgEnableAccessSpecResponse,
	TypeDisableAccessSpec:             MsgDisableAccessSpec,
	TypeDisableAccessSpecResponse:     MsgDisableAccessSpecResponse,
	TypeROAccessReport:                MsgROAccessReport,
	TypeKeepalive:                     MsgKeepalive,
	TypeKeepaliveAck:                  MsgKeepaliveAck,
	TypeReaderEventNotification:       MsgReaderEventNotification,
}

var messageName2Type = func() map[MessageName]uint16 {
	out := make(map[MessageName]uint16, len(messageType2Name))
	for t, n := range messageType2Name {
		out[n] = t
	}
	return out
}()

// Message is a decoded (or to-be-encoded) LLRP message: a name plus a field
// mapping, per spec.md §3. Field ordering is not significant.
type Message struct {
	Ver    uint8
	Type   uint16
	ID     uint32
	Name   MessageName
	Fields map[string]interface{}
}

// IsSuccess classifies a response message as success/failure per spec.md
// §4.5's derivation rule.
func (m *Message) IsSuccess() bool {
	switch m.Name {
	case MsgReaderEventNotification:
		evt, _ := m.Fields["ReaderEventNotificationData"].(map[string]interface{})
		if evt == nil {
			return false
		}
		if status, ok := evt["ConnectionAttemptEvent"].(string); ok {
			return status == "Success"
		}
		if ae, ok := evt["AntennaEvent"].(map[string]interface{}); ok {
			et, _ := ae["EventType"].(string)
			return et == "Connected"
		}
		return false
	default:
		status, ok := m.Fields["LLRPStatus"].(map[string]interface{})
		if !ok {
			// Messages with no LLRPStatus (e.g. RO_ACCESS_REPORT) are
			// neither successes nor failures in the protocol sense.
			return true
		}
		code, _ := status["StatusCode"].(string)
		return code == "Success"
	}
}

// StatusOf extracts the StatusCode/ErrorDescription from a response's
// LLRPStatus parameter, if present.
func (m *Message) StatusOf() (code, desc string, ok bool) {
	status, has := m.Fields["LLRPStatus"].(map[string]interface{})
	if !has {
		return "", "", false
	}
	code, _ = status["StatusCode"].(string)
	desc, _ = status["ErrorDescription"].(string)
	return code, desc, true
}
