package llrp

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackHeaderRoundTrip(t *testing.T) {
	raw := packFrame(1, TypeGetReaderCapabilities, 0x1234, []byte("payload"))
	ver, msgType, length, id := unpackHeader(raw[:headerLen])
	assert.Equal(t, uint8(1), ver)
	assert.Equal(t, TypeGetReaderCapabilities, msgType)
	assert.Equal(t, uint32(headerLen+len("payload")), length)
	assert.Equal(t, uint32(0x1234), id)
}

func TestFrameReaderSinglePush(t *testing.T) {
	raw := packFrame(1, TypeKeepalive, 7, nil)
	fr := newFrameReader(bytes.NewReader(raw))
	frame, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, TypeKeepalive, frame.Type)
	assert.Equal(t, uint32(7), frame.ID)
	assert.Empty(t, frame.Payload)
}

// byteAtATimeReader delivers one byte per Read call, exercising the
// partial-read reassembly frameReader must handle (mirrors sllurp's
// data_received being invoked with arbitrary chunk boundaries).
type byteAtATimeReader struct {
	b []byte
}

func (r *byteAtATimeReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	p[0] = r.b[0]
	r.b = r.b[1:]
	return 1, nil
}

func TestFrameReaderPartialReads(t *testing.T) {
	raw := packFrame(1, TypeGetReaderCapabilitiesResponse, 99, []byte{1, 2, 3, 4, 5})
	fr := newFrameReader(&byteAtATimeReader{b: raw})
	frame, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, TypeGetReaderCapabilitiesResponse, frame.Type)
	assert.Equal(t, uint32(99), frame.ID)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, frame.Payload)
}

func TestFrameReaderTwoBackToBackMessages(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(packFrame(1, TypeKeepalive, 1, nil))
	buf.Write(packFrame(1, TypeKeepaliveAck, 2, nil))
	fr := newFrameReader(&buf)

	first, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, TypeKeepalive, first.Type)

	second, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, TypeKeepaliveAck, second.Type)
}

func TestFrameReaderRejectsShortLength(t *testing.T) {
	header := make([]byte, headerLen)
	header[2], header[3], header[4], header[5] = 0, 0, 0, 4 // length < headerLen
	fr := newFrameReader(bytes.NewReader(header))
	_, err := fr.ReadFrame()
	require.Error(t, err)
	var fe *FramingError
	assert.ErrorAs(t, err, &fe)
}

func TestFrameReaderEOF(t *testing.T) {
	fr := newFrameReader(bytes.NewReader(nil))
	_, err := fr.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}
