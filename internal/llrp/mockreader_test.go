package llrp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// mockReader is a scripted LLRP reader for end-to-end state-machine tests,
// grounded on spec.md §8's "scripted mock reader" scenarios. It speaks one
// side of a net.Pipe() using the same frameReader/codec the real Conn uses,
// so a test script reads/writes actual wire messages rather than poking at
// Conn internals.
type mockReader struct {
	t    *testing.T
	conn net.Conn
	fr   *frameReader
}

func newMockReader(t *testing.T, conn net.Conn) *mockReader {
	return &mockReader{t: t, conn: conn, fr: newFrameReader(conn)}
}

func (m *mockReader) recv() *Message {
	m.t.Helper()
	frame, err := m.fr.ReadFrame()
	require.NoError(m.t, err)
	msg, err := DecodeMessage(frame)
	require.NoError(m.t, err)
	return msg
}

func (m *mockReader) send(name MessageName, id uint32, fields map[string]interface{}) {
	m.t.Helper()
	raw, err := EncodeMessage(&Message{Ver: 1, Name: name, ID: id, Fields: fields})
	require.NoError(m.t, err)
	_, err = m.conn.Write(raw)
	require.NoError(m.t, err)
}

// statusOK is the LLRPStatus payload for a successful response.
func statusOK() map[string]interface{} {
	return map[string]interface{}{"StatusCode": "Success"}
}

// statusFail is the LLRPStatus payload for a rejected request.
func statusFail(desc string) map[string]interface{} {
	return map[string]interface{}{"StatusCode": "M_FieldError", "ErrorDescription": desc}
}

// twoEntryCapabilities is the GET_READER_CAPABILITIES_RESPONSE fields used
// across scenarios S1/S2/S4/S5/S6: MaxNumberOfAntennaSupported=2, a single
// power-table entry (doctest value 3225 -> 32.25 dBm), one M4 RF mode.
func twoEntryCapabilities() map[string]interface{} {
	return map[string]interface{}{
		"LLRPStatus": statusOK(),
		"GeneralDeviceCapabilities": map[string]interface{}{
			"MaxNumberOfAntennaSupported": uint16(2),
		},
		"RegulatoryCapabilities": map[string]interface{}{
			"UHFBandCapabilities": map[string]interface{}{
				"TransmitPowerTable": []map[string]interface{}{
					{"Index": uint16(1), "TransmitPowerValue": uint16(3225)},
				},
				"RFModeTable": []map[string]interface{}{
					{"ModeIndex": uint32(0), "Mod": uint8(2), "MaxTari": uint32(25000)},
				},
			},
		},
	}
}
