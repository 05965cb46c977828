package llrp

import (
	"encoding/binary"
	"io"
)

// This file implements C1, the binary framing layer. The LLRP header is
// 10 bytes: a 3-bit version, a 10-bit message type, 3 reserved bits, a
// 32-bit length (header included), and a 32-bit message ID, all big-endian.
// Grounded on sllurp's LLRPMessage header pack/unpack and
// LLRPClient.data_received partial-read reassembly (llrp.py).
const (
	headerLen      = 10
	defaultVersion = uint8(1)

	// maxFrameLen bounds a single message to guard against a corrupt or
	// malicious length field stalling the reader forever.
	maxFrameLen = 10 * 1024 * 1024
)

// rawFrame is one fully reassembled LLRP message: header fields plus the
// parameter-TLV body immediately following the header.
type rawFrame struct {
	Ver     uint8
	Type    uint16
	ID      uint32
	Payload []byte
}

// packFrame serializes a header + payload into one wire-ready buffer.
func packFrame(ver uint8, msgType uint16, id uint32, payload []byte) []byte {
	out := make([]byte, headerLen+len(payload))
	word := uint16(ver&0x7)<<13 | (msgType & 0x3ff)
	binary.BigEndian.PutUint16(out[0:2], word)
	binary.BigEndian.PutUint32(out[2:6], uint32(headerLen+len(payload)))
	binary.BigEndian.PutUint32(out[6:10], id)
	copy(out[headerLen:], payload)
	return out
}

// unpackHeader decodes the fixed 10-byte header. The 3 reserved bits are not
// returned: nonzero reserved bits are neither rejected nor logged.
func unpackHeader(h []byte) (ver uint8, msgType uint16, length uint32, id uint32) {
	word := binary.BigEndian.Uint16(h[0:2])
	ver = uint8(word>>13) & 0x7
	msgType = word & 0x3ff
	length = binary.BigEndian.Uint32(h[2:6])
	id = binary.BigEndian.Uint32(h[6:10])
	return
}

// frameReader reassembles complete frames out of a stream that may deliver
// partial reads, mirroring data_received's expectingRemainingBytes/
// partialData bookkeeping with an io.Reader pulled one frame at a time
// instead of fed push-style, since Go gives us blocking reads.
type frameReader struct {
	r io.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: r}
}

// ReadFrame blocks until one full message has arrived, or returns an error
// (io.EOF on orderly close, a *FramingError on a malformed or oversized
// length field, or the underlying read error otherwise).
func (fr *frameReader) ReadFrame() (rawFrame, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(fr.r, header); err != nil {
		return rawFrame{}, err
	}
	ver, msgType, length, id := unpackHeader(header)
	if length < headerLen {
		return rawFrame{}, &FramingError{Reason: "message length shorter than header"}
	}
	if length > maxFrameLen {
		return rawFrame{}, &FramingError{Reason: "message length exceeds maximum frame size"}
	}

	payload := make([]byte, length-headerLen)
	if len(payload) > 0 {
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			return rawFrame{}, err
		}
	}
	return rawFrame{Ver: ver, Type: msgType, ID: id, Payload: payload}, nil
}
