package llrp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderEventNotificationConnectionSuccess(t *testing.T) {
	body, err := encodeReaderEventNotification(map[string]interface{}{
		"ReaderEventNotificationData": map[string]interface{}{
			"ConnectionAttemptEvent": "Success",
		},
	})
	require.NoError(t, err)

	fields, err := decodeReaderEventNotification(body)
	require.NoError(t, err)
	msg := &Message{Name: MsgReaderEventNotification, Fields: fields}
	assert.True(t, msg.IsSuccess())
}

func TestReaderEventNotificationConnectionFailure(t *testing.T) {
	body, err := encodeReaderEventNotification(map[string]interface{}{
		"ReaderEventNotificationData": map[string]interface{}{
			"ConnectionAttemptEvent": "Failed",
		},
	})
	require.NoError(t, err)

	fields, err := decodeReaderEventNotification(body)
	require.NoError(t, err)
	msg := &Message{Name: MsgReaderEventNotification, Fields: fields}
	assert.False(t, msg.IsSuccess())
}

func TestROAccessReportRoundTrip(t *testing.T) {
	tags := []TagReport{
		{EPC: []byte{0xDE, 0xAD, 0xBE, 0xEF}, AntennaID: 1, PeakRSSI: -55, TagSeenCount: 3},
		{EPC: []byte{0xCA, 0xFE}, AntennaID: 2, PeakRSSI: -61, TagSeenCount: 1},
	}
	body, err := encodeROAccessReport(map[string]interface{}{"TagReportData": tags})
	require.NoError(t, err)

	decoded, err := decodeROAccessReport(body)
	require.NoError(t, err)
	out := decoded["TagReportData"].([]TagReport)
	require.Len(t, out, 2)
	assert.Equal(t, "DEADBEEF", out[0].EPCHex())
	assert.EqualValues(t, -55, out[0].PeakRSSI)
	assert.EqualValues(t, 3, out[0].TagSeenCount)
	assert.EqualValues(t, 2, out[1].AntennaID)

	m := out[0].Map()
	assert.Equal(t, out[0].EPC, m["EPC-96"])
}
