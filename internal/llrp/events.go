package llrp

import (
	"bytes"
	"fmt"

	"github.com/fatih/structs"
	"github.com/pkg/errors"
)

// This file implements the READER_EVENT_NOTIFICATION and RO_ACCESS_REPORT
// codecs. Grounded on sllurp's handleMessage RO_ACCESS_REPORT/READER_EVENT_
// NOTIFICATION branches, which read ReaderEventNotificationData's
// ConnectionAttemptEvent/AntennaEvent and a TagReportData list respectively
// (llrp.py).

func encodeReaderEventNotification(fields map[string]interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	data, _ := fields["ReaderEventNotificationData"].(map[string]interface{})
	if data == nil {
		return nil, errors.New("READER_EVENT_NOTIFICATION requires ReaderEventNotificationData")
	}

	inner := &bytes.Buffer{}
	if status, ok := data["ConnectionAttemptEvent"].(string); ok {
		e := &bytes.Buffer{}
		var code uint16
		if status == "Success" {
			code = 0
		} else {
			code = 1
		}
		putU16(e, code)
		writeParam(inner, paramConnectionAttemptEvent, e.Bytes())
	}
	if ev, ok := data["AntennaEvent"].(map[string]interface{}); ok {
		e := &bytes.Buffer{}
		eventType, _ := ev["EventType"].(string)
		var code uint8
		if eventType == "Connected" {
			code = 1
		}
		putU8(e, code)
		putU16(e, toUint16(ev["AntennaID"]))
		writeParam(inner, paramAntennaEvent, e.Bytes())
	}
	writeParam(buf, paramReaderEventNotificationData, inner.Bytes())
	return buf.Bytes(), nil
}

func decodeReaderEventNotification(body []byte) (map[string]interface{}, error) {
	payload, ok := findParam(body, paramReaderEventNotificationData)
	if !ok {
		return nil, errors.New("missing ReaderEventNotificationData")
	}
	data := map[string]interface{}{}

	if e, ok := findParam(payload, paramConnectionAttemptEvent); ok {
		c := &cursor{e}
		code, err := c.u16()
		if err != nil {
			return nil, err
		}
		status := "Failure"
		if code == 0 {
			status = "Success"
		}
		data["ConnectionAttemptEvent"] = status
	}
	if e, ok := findParam(payload, paramAntennaEvent); ok {
		c := &cursor{e}
		code, err := c.u8()
		if err != nil {
			return nil, err
		}
		antID, err := c.u16()
		if err != nil {
			return nil, err
		}
		eventType := "Disconnected"
		if code == 1 {
			eventType = "Connected"
		}
		data["AntennaEvent"] = map[string]interface{}{
			"EventType": eventType,
			"AntennaID": antID,
		}
	}
	return map[string]interface{}{"ReaderEventNotificationData": data}, nil
}

// TagReport is one decoded TagReportData entry, per spec.md §4.6's field
// list (EPC-96, AntennaID, PeakRSSI, First/LastSeenTimestampUTC, TagSeenCount).
type TagReport struct {
	EPC                   []byte `structs:"EPC-96"`
	AntennaID             uint16 `structs:"AntennaID"`
	PeakRSSI              int8   `structs:"PeakRSSI"`
	FirstSeenTimestampUTC uint64 `structs:"FirstSeenTimestampUTC"`
	LastSeenTimestampUTC  uint64 `structs:"LastSeenTimestampUTC"`
	TagSeenCount          uint16 `structs:"TagSeenCount"`
}

// EPCHex renders the tag's EPC-96 as an uppercase hex string, the
// conventional way sllurp's CLI and callback consumers display an EPC.
func (t TagReport) EPCHex() string {
	return fmt.Sprintf("%X", t.EPC)
}

// Map flattens a TagReport into a map[string]interface{} keyed by its
// `structs` tags, for callback/reporting consumers that want a generic
// payload rather than the concrete struct.
func (t TagReport) Map() map[string]interface{} {
	return structs.Map(t)
}

func encodeROAccessReport(fields map[string]interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	tags, _ := fields["TagReportData"].([]TagReport)
	for _, t := range tags {
		entry := &bytes.Buffer{}

		epc := &bytes.Buffer{}
		putU16(epc, uint16(len(t.EPC)))
		epc.Write(t.EPC)
		writeParam(entry, paramEPC96, epc.Bytes())

		putU16(entry, t.AntennaID)
		putU8(entry, uint8(t.PeakRSSI))
		putU64(entry, t.FirstSeenTimestampUTC)
		putU64(entry, t.LastSeenTimestampUTC)
		putU16(entry, t.TagSeenCount)

		writeParam(buf, paramTagReportData, entry.Bytes())
	}
	return buf.Bytes(), nil
}

func decodeROAccessReport(body []byte) (map[string]interface{}, error) {
	var tags []TagReport
	err := forEachParam(body, func(ptype uint16, payload []byte) bool {
		if ptype != paramTagReportData {
			return true
		}
		epcPayload, ok := findParam(payload, paramEPC96)
		if !ok {
			return true
		}
		ec := &cursor{epcPayload}
		epcLen, err := ec.u16()
		if err != nil {
			return true
		}
		epc, err := ec.bytes(int(epcLen))
		if err != nil {
			return true
		}

		// The remainder of the entry, after the EPC-96 parameter, is a
		// fixed sequence of scalar fields rather than further nested TLVs
		// (spec.md §4.6 treats these as the report's flat "tail").
		_, _, rest, err := readParam(payload)
		if err != nil {
			return true
		}
		rc := &cursor{rest}
		antID, e1 := rc.u16()
		rssi, e2 := rc.u8()
		first, e3 := rc.u64()
		last, e4 := rc.u64()
		seen, e5 := rc.u16()
		if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil {
			return true
		}

		tags = append(tags, TagReport{
			EPC:                   append([]byte(nil), epc...),
			AntennaID:             antID,
			PeakRSSI:              int8(rssi),
			FirstSeenTimestampUTC: first,
			LastSeenTimestampUTC:  last,
			TagSeenCount:          seen,
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"TagReportData": tags}, nil
}
