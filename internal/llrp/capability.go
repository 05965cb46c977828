package llrp

import (
	"bytes"

	"github.com/pkg/errors"
)

// This file implements C4 (the capability negotiator) plus the codec
// functions for GET_READER_CAPABILITIES_RESPONSE, grounded on sllurp's
// parseCapabilities/parsePowerTable/get_tx_power (llrp.py).

func encodeGetReaderCapabilitiesResponse(fields map[string]interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}

	status, _ := fields["LLRPStatus"].(map[string]interface{})
	if status == nil {
		status = map[string]interface{}{"StatusCode": "Success"}
	}
	writeParam(buf, paramLLRPStatus, encodeLLRPStatus(status))

	if gdc, ok := fields["GeneralDeviceCapabilities"].(map[string]interface{}); ok {
		inner := &bytes.Buffer{}
		putU16(inner, toUint16(gdc["MaxNumberOfAntennaSupported"]))
		writeParam(buf, paramGeneralDeviceCapabilities, inner.Bytes())
	}

	if reg, ok := fields["RegulatoryCapabilities"].(map[string]interface{}); ok {
		regInner := &bytes.Buffer{}
		if band, ok := reg["UHFBandCapabilities"].(map[string]interface{}); ok {
			bandInner := &bytes.Buffer{}
			if table, ok := band["TransmitPowerTable"].([]map[string]interface{}); ok {
				for _, entry := range table {
					e := &bytes.Buffer{}
					putU16(e, toUint16(entry["Index"]))
					putU16(e, toUint16(entry["TransmitPowerValue"]))
					writeParam(bandInner, paramTransmitPowerLevelTableEntry, e.Bytes())
				}
			}
			if modes, ok := band["RFModeTable"].([]map[string]interface{}); ok {
				modeTable := &bytes.Buffer{}
				for _, entry := range modes {
					e := &bytes.Buffer{}
					putU32(e, toUint32(entry["ModeIndex"]))
					putU8(e, toUint8(entry["Mod"]))
					putU32(e, toUint32(entry["MaxTari"]))
					writeParam(modeTable, paramUHFC1G2RFModeTableEntry, e.Bytes())
				}
				writeParam(bandInner, paramUHFC1G2RFModeTable, modeTable.Bytes())
			}
			writeParam(regInner, paramUHFBandCapabilities, bandInner.Bytes())
		}
		writeParam(buf, paramRegulatoryCapabilities, regInner.Bytes())
	}

	return buf.Bytes(), nil
}

func decodeGetReaderCapabilitiesResponse(body []byte) (map[string]interface{}, error) {
	out := map[string]interface{}{}

	statusPayload, ok := findParam(body, paramLLRPStatus)
	if !ok {
		return nil, errors.New("missing LLRPStatus")
	}
	status, err := decodeLLRPStatus(statusPayload)
	if err != nil {
		return nil, err
	}
	out["LLRPStatus"] = status

	if gdcPayload, ok := findParam(body, paramGeneralDeviceCapabilities); ok {
		c := &cursor{gdcPayload}
		maxAnt, err := c.u16()
		if err != nil {
			return nil, err
		}
		out["GeneralDeviceCapabilities"] = map[string]interface{}{
			"MaxNumberOfAntennaSupported": maxAnt,
		}
	}

	if regPayload, ok := findParam(body, paramRegulatoryCapabilities); ok {
		bandPayload, ok := findParam(regPayload, paramUHFBandCapabilities)
		if ok {
			var table []map[string]interface{}
			var modes []map[string]interface{}
			err := forEachParam(bandPayload, func(ptype uint16, payload []byte) bool {
				switch ptype {
				case paramTransmitPowerLevelTableEntry:
					c := &cursor{payload}
					idx, e1 := c.u16()
					val, e2 := c.u16()
					if e1 == nil && e2 == nil {
						table = append(table, map[string]interface{}{
							"Index":              idx,
							"TransmitPowerValue": val,
						})
					}
				case paramUHFC1G2RFModeTable:
					_ = forEachParam(payload, func(pt2 uint16, p2 []byte) bool {
						if pt2 != paramUHFC1G2RFModeTableEntry {
							return true
						}
						c := &cursor{p2}
						modeIdx, e1 := c.u32()
						mod, e2 := c.u8()
						maxTari, e3 := c.u32()
						if e1 == nil && e2 == nil && e3 == nil {
							modes = append(modes, map[string]interface{}{
								"ModeIndex": modeIdx,
								"Mod":       mod,
								"MaxTari":   maxTari,
							})
						}
						return true
					})
				}
				return true
			})
			if err != nil {
				return nil, err
			}
			out["RegulatoryCapabilities"] = map[string]interface{}{
				"UHFBandCapabilities": map[string]interface{}{
					"TransmitPowerTable": table,
					"RFModeTable":        modes,
				},
			}
		}
	}

	return out, nil
}

// PowerTableEntry is a transmit power table slot, in dBm. Index 0 is
// always the reserved sentinel (spec.md invariant: table[0] == 0).
type PowerTableEntry = float64

// RFMode describes a negotiated Gen2 RF mode.
type RFMode struct {
	ModeIndex uint32
	Mod       uint8
	MaxTari   uint32
}

// Capabilities is the decoded dictionary the reader returns from
// GET_READER_CAPABILITIES, captured once after connect and never mutated
// (spec.md §3).
type Capabilities struct {
	MaxAntennas  uint16
	PowerTable   []PowerTableEntry
	RFModeTable  []RFMode
}

// parseCapabilities extracts a Capabilities value from a decoded
// GET_READER_CAPABILITIES_RESPONSE field mapping.
func parseCapabilities(fields map[string]interface{}) (*Capabilities, error) {
	gdc, _ := fields["GeneralDeviceCapabilities"].(map[string]interface{})
	if gdc == nil {
		return nil, errors.New("missing GeneralDeviceCapabilities")
	}
	reg, _ := fields["RegulatoryCapabilities"].(map[string]interface{})
	if reg == nil {
		return nil, errors.New("missing RegulatoryCapabilities")
	}
	band, _ := reg["UHFBandCapabilities"].(map[string]interface{})
	if band == nil {
		return nil, errors.New("missing UHFBandCapabilities")
	}

	caps := &Capabilities{
		MaxAntennas: toUint16(gdc["MaxNumberOfAntennaSupported"]),
	}
	caps.PowerTable = parsePowerTable(band)

	if modes, ok := band["RFModeTable"].([]map[string]interface{}); ok {
		for _, m := range modes {
			caps.RFModeTable = append(caps.RFModeTable, RFMode{
				ModeIndex: toUint32(m["ModeIndex"]),
				Mod:       toUint8(m["Mod"]),
				MaxTari:   toUint32(m["MaxTari"]),
			})
		}
	}
	return caps, nil
}

// parsePowerTable builds table[0]=0, table[idx]=value/100.0, matching
// sllurp's LLRPProtocol.parsePowerTable (including its doctest: a single
// entry {Index:1, TransmitPowerValue:3225} yields [0, 32.25]).
func parsePowerTable(band map[string]interface{}) []PowerTableEntry {
	entries, _ := band["TransmitPowerTable"].([]map[string]interface{})
	size := 1
	for _, e := range entries {
		idx := int(toUint16(e["Index"]))
		if idx+1 > size {
			size = idx + 1
		}
	}
	table := make([]PowerTableEntry, size)
	for _, e := range entries {
		idx := int(toUint16(e["Index"]))
		table[idx] = float64(toUint16(e["TransmitPowerValue"])) / 100.0
	}
	return table
}

// NegotiatedCapabilities is the output of negotiateCapabilities (spec.md
// §4.4).
type NegotiatedCapabilities struct {
	Antennas   []int
	TxPowerIdx int
	RFMode     RFMode
}

// negotiateCapabilities implements C4: antenna validation, power-table
// parsing/selection, and RF-mode selection ("find first match, else fall
// back", preserved verbatim per spec.md §9).
func negotiateCapabilities(caps *Capabilities, reqAntennas []int, reqTxPower int, modulation string, tari int) (*NegotiatedCapabilities, error) {
	antennas := make([]int, 0, len(reqAntennas))
	for _, a := range reqAntennas {
		if a <= int(caps.MaxAntennas) {
			antennas = append(antennas, a)
		}
	}
	if len(antennas) == 0 {
		return nil, &CapabilityMismatchError{Reason: "no requested antenna is within the reader's supported set"}
	}

	txIdx, _, err := selectTxPower(caps.PowerTable, reqTxPower)
	if err != nil {
		return nil, err
	}

	modCode, ok := ModulationName2Type[modulation]
	if !ok {
		return nil, &CapabilityMismatchError{Reason: "unknown modulation " + modulation}
	}

	var chosen *RFMode
	for i := range caps.RFModeTable {
		v := caps.RFModeTable[i]
		match := int(v.Mod) == modCode
		if tari != 0 {
			match = match && int(v.MaxTari) == tari
		}
		if match {
			chosen = &v
			break
		}
	}
	if chosen == nil {
		if len(caps.RFModeTable) == 0 {
			return nil, &CapabilityMismatchError{Reason: "reader advertises no RF modes"}
		}
		fallback := caps.RFModeTable[0]
		chosen = &fallback
	}

	return &NegotiatedCapabilities{
		Antennas:   antennas,
		TxPowerIdx: txIdx,
		RFMode:     *chosen,
	}, nil
}

// selectTxPower implements get_tx_power: 0 means "max power"; otherwise the
// requested index must be in range.
func selectTxPower(table []PowerTableEntry, requested int) (idx int, dbm float64, err error) {
	if len(table) == 0 {
		return 0, 0, &CapabilityMismatchError{Reason: "empty power table"}
	}
	if requested == 0 {
		maxIdx := 0
		for i, v := range table {
			if v > table[maxIdx] {
				maxIdx = i
			}
		}
		return maxIdx, table[maxIdx], nil
	}
	if requested < 1 || requested >= len(table) {
		return 0, 0, &InvalidTxPowerError{Requested: requested, Min: 1, Max: len(table) - 1}
	}
	return requested, table[requested], nil
}
