package llrp

import (
	"bytes"

	"github.com/pkg/errors"
)

// This file implements the AccessSpec half of C3 plus the ADD_ACCESSSPEC
// codec functions. Grounded on sllurp's startAccess (llrp.py), which
// assembles an "AccessSpec" dict from readWords/writeWords/param plus a
// C1G2TargetTag mask and an AccessSpecStopTrigger.

const (
	opKindRead uint8 = 1
	opKindWrite uint8 = 2
	opKindLock uint8 = 3
)

// AccessOpSpec describes a single read/write/lock operation.
type AccessOpSpec struct {
	Kind          string // "Read", "Write", or "Lock"
	MB            uint8
	WordPtr       uint16
	WordCount     uint16 // Read
	WriteData     []byte // Write
	AccessPassword uint32
}

// AccessSpecConfig enumerates the recognized AccessSpec options, per
// spec.md §3's AccessSpec data model.
type AccessSpecConfig struct {
	AccessSpecID uint32
	AntennaID    uint16 // 0 means all antennas
	ROSpecID     uint32 // 0 means all ROSpecs
	TagMask      []byte
	Op           AccessOpSpec
	StopAfterN   uint32 // 0 means no count-based stop trigger
}

// BuildAccessSpec is the pure, deterministic builder for AccessSpec values.
func BuildAccessSpec(cfg AccessSpecConfig) (map[string]interface{}, error) {
	if cfg.AccessSpecID == 0 {
		return nil, errors.New("AccessSpecID must be nonzero")
	}
	switch cfg.Op.Kind {
	case "Read", "Write", "Lock":
	default:
		return nil, errors.Errorf("unknown op kind %q", cfg.Op.Kind)
	}
	return map[string]interface{}{
		"AccessSpecID": cfg.AccessSpecID,
		"AntennaID":    cfg.AntennaID,
		"ROSpecID":     cfg.ROSpecID,
		"TagMask":      cfg.TagMask,
		"Op":           cfg.Op,
		"StopAfterN":   cfg.StopAfterN,
	}, nil
}

func encodeAccessSpecValue(spec map[string]interface{}) []byte {
	buf := &bytes.Buffer{}
	putU32(buf, toUint32(spec["AccessSpecID"]))
	putU16(buf, toUint16(spec["AntennaID"]))
	putU32(buf, toUint32(spec["ROSpecID"]))

	stop := &bytes.Buffer{}
	putU32(stop, toUint32(spec["StopAfterN"]))
	writeParam(buf, paramAccessSpecStopTrigger, stop.Bytes())

	cmd := &bytes.Buffer{}
	mask, _ := spec["TagMask"].([]byte)
	tt := &bytes.Buffer{}
	putU16(tt, uint16(len(mask)))
	tt.Write(mask)
	writeParam(cmd, paramC1G2TargetTag, tt.Bytes())

	op, _ := spec["Op"].(AccessOpSpec)
	opBuf := &bytes.Buffer{}
	putU32(opBuf, op.AccessPassword)
	switch op.Kind {
	case "Read":
		putU8(opBuf, op.MB)
		putU16(opBuf, op.WordPtr)
		putU16(opBuf, op.WordCount)
		writeParam(cmd, paramC1G2Read, opBuf.Bytes())
	case "Write":
		putU8(opBuf, op.MB)
		putU16(opBuf, op.WordPtr)
		putU16(opBuf, uint16(len(op.WriteData)/2))
		opBuf.Write(op.WriteData)
		writeParam(cmd, paramC1G2Write, opBuf.Bytes())
	case "Lock":
		writeParam(cmd, paramC1G2InventoryCommand, opBuf.Bytes())
	}
	writeParam(buf, paramAccessCommand, cmd.Bytes())

	reportSpec := &bytes.Buffer{}
	putU8(reportSpec, 1) // report at end of access
	writeParam(buf, paramAccessReportSpec, reportSpec.Bytes())

	return buf.Bytes()
}

func decodeAccessSpecValue(b []byte) (map[string]interface{}, error) {
	c := &cursor{b}
	id, err := c.u32()
	if err != nil {
		return nil, err
	}
	antID, err := c.u16()
	if err != nil {
		return nil, err
	}
	roID, err := c.u32()
	if err != nil {
		return nil, err
	}

	spec := map[string]interface{}{
		"AccessSpecID": id,
		"AntennaID":    antID,
		"ROSpecID":     roID,
	}

	err = forEachParam(c.b, func(ptype uint16, payload []byte) bool {
		switch ptype {
		case paramAccessSpecStopTrigger:
			pc := &cursor{payload}
			n, _ := pc.u32()
			spec["StopAfterN"] = n
		case paramAccessCommand:
			if tagMask, ok := findParam(payload, paramC1G2TargetTag); ok {
				tc := &cursor{tagMask}
				n, _ := tc.u16()
				mask, _ := tc.bytes(int(n))
				spec["TagMask"] = append([]byte(nil), mask...)
			}
			if opPayload, ok := findParam(payload, paramC1G2Read); ok {
				oc := &cursor{opPayload}
				pw, _ := oc.u32()
				mb, _ := oc.u8()
				wp, _ := oc.u16()
				wc, _ := oc.u16()
				spec["Op"] = AccessOpSpec{Kind: "Read", AccessPassword: pw, MB: mb, WordPtr: wp, WordCount: wc}
			} else if opPayload, ok := findParam(payload, paramC1G2Write); ok {
				oc := &cursor{opPayload}
				pw, _ := oc.u32()
				mb, _ := oc.u8()
				wp, _ := oc.u16()
				wordCount, _ := oc.u16()
				data, _ := oc.bytes(int(wordCount) * 2)
				spec["Op"] = AccessOpSpec{Kind: "Write", AccessPassword: pw, MB: mb, WordPtr: wp, WriteData: append([]byte(nil), data...)}
			} else if _, ok := findParam(payload, paramC1G2InventoryCommand); ok {
				spec["Op"] = AccessOpSpec{Kind: "Lock"}
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func encodeAddAccessSpec(fields map[string]interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	spec, _ := fields["AccessSpec"].(map[string]interface{})
	if spec == nil {
		return nil, errors.New("ADD_ACCESSSPEC requires an AccessSpec")
	}
	writeParam(buf, paramAccessSpec, encodeAccessSpecValue(spec))
	return buf.Bytes(), nil
}

func decodeAddAccessSpec(body []byte) (map[string]interface{}, error) {
	payload, ok := findParam(body, paramAccessSpec)
	if !ok {
		return nil, errors.New("missing AccessSpec")
	}
	spec, err := decodeAccessSpecValue(payload)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"AccessSpec": spec}, nil
}
