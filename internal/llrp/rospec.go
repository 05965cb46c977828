package llrp

import (
	"bytes"

	"github.com/pkg/errors"
)

// This file implements C3 (the ROSpec half of the builder) plus the
// ADD_ROSPEC codec functions. Grounded on sllurp's getROSpec/LLRPROSpec
// construction (llrp.py).

var roCurrentStateName2Code = map[string]uint8{"Disabled": 0, "Inactive": 1, "Active": 2}
var roCurrentStateCode2Name = map[uint8]string{0: "Disabled", 1: "Inactive", 2: "Active"}

const (
	startTriggerNull      uint8 = 0
	startTriggerImmediate uint8 = 1
	stopTriggerNull       uint8 = 0
	stopTriggerDuration   uint8 = 1
)

// ROSpecConfig enumerates the recognized ROSpec options, per spec.md §4.3.
type ROSpecConfig struct {
	ROSpecID           uint32
	DurationSec        float64 // 0 means no duration trigger
	ReportEveryNTags   int
	ReportTimeoutMs    int
	TxPowerIndex       int
	Antennas           []int
	TagContentSelector map[string]bool
	Session            int
	TagPopulation      int
	RFMode             RFMode
}

// BuildROSpec is the pure, deterministic C3 builder: cfg -> ROSpec value.
func BuildROSpec(cfg ROSpecConfig) (map[string]interface{}, error) {
	if cfg.ROSpecID == 0 {
		return nil, errors.New("ROSpecID must be nonzero")
	}
	if len(cfg.Antennas) == 0 {
		return nil, errors.New("at least one antenna is required")
	}
	if cfg.ReportEveryNTags < 1 {
		cfg.ReportEveryNTags = 1
	}
	if cfg.Session < 0 || cfg.Session > 3 {
		return nil, errors.Errorf("session must be in 0..3, got %d", cfg.Session)
	}
	if cfg.TagPopulation < 1 {
		cfg.TagPopulation = 1
	}

	antennas := make([]uint16, len(cfg.Antennas))
	for i, a := range cfg.Antennas {
		antennas[i] = uint16(a)
	}

	selector := map[string]bool{}
	for _, k := range tagContentSelectorFields {
		selector[k] = cfg.TagContentSelector[k]
	}

	rospec := map[string]interface{}{
		"ROSpecID":           cfg.ROSpecID,
		"Priority":           uint8(0),
		"CurrentState":       "Disabled",
		"DurationSec":        cfg.DurationSec,
		"AntennaIDs":         antennas,
		"TxPowerIndex":       uint16(cfg.TxPowerIndex),
		"RFModeIndex":        cfg.RFMode.ModeIndex,
		"Session":            uint8(cfg.Session),
		"TagPopulation":      uint32(cfg.TagPopulation),
		"ReportEveryNTags":   uint32(cfg.ReportEveryNTags),
		"ReportTimeoutMs":    uint32(cfg.ReportTimeoutMs),
		"TagContentSelector": selector,
	}
	return rospec, nil
}

func encodeROSpecValue(rospec map[string]interface{}) []byte {
	buf := &bytes.Buffer{}
	putU32(buf, toUint32(rospec["ROSpecID"]))
	putU8(buf, toUint8(rospec["Priority"]))
	state, _ := rospec["CurrentState"].(string)
	putU8(buf, roCurrentStateName2Code[state])

	start := &bytes.Buffer{}
	durationSec, _ := rospec["DurationSec"].(float64)
	if durationSec > 0 {
		putU8(start, startTriggerImmediate)
	} else {
		putU8(start, startTriggerNull)
	}
	writeParam(buf, paramROSpecStartTrigger, start.Bytes())

	stop := &bytes.Buffer{}
	if durationSec > 0 {
		putU8(stop, stopTriggerDuration)
		putU32(stop, uint32(durationSec*1000))
	} else {
		putU8(stop, stopTriggerNull)
		putU32(stop, 0)
	}
	writeParam(buf, paramROSpecStopTrigger, stop.Bytes())

	ai := &bytes.Buffer{}
	antennas, _ := rospec["AntennaIDs"].([]uint16)
	putU16(ai, uint16(len(antennas)))
	for _, a := range antennas {
		putU16(ai, a)
	}
	inv := &bytes.Buffer{}
	putU16(inv, toUint16(rospec["TxPowerIndex"]))
	putU32(inv, toUint32(rospec["RFModeIndex"]))
	putU8(inv, toUint8(rospec["Session"]))
	putU32(inv, toUint32(rospec["TagPopulation"]))
	writeParam(ai, paramRFTransmitterSettings, inv.Bytes())
	writeParam(buf, paramAISpec, ai.Bytes())

	rr := &bytes.Buffer{}
	putU32(rr, toUint32(rospec["ReportEveryNTags"]))
	putU32(rr, toUint32(rospec["ReportTimeoutMs"]))
	selector, _ := rospec["TagContentSelector"].(map[string]bool)
	var mask uint16
	for i, k := range tagContentSelectorFields {
		if selector[k] {
			mask |= 1 << uint(i)
		}
	}
	sel := &bytes.Buffer{}
	putU16(sel, mask)
	writeParam(rr, paramTagReportContentSelector, sel.Bytes())
	writeParam(buf, paramROReportSpec, rr.Bytes())

	return buf.Bytes()
}

func decodeROSpecValue(b []byte) (map[string]interface{}, error) {
	c := &cursor{b}
	id, err := c.u32()
	if err != nil {
		return nil, err
	}
	priority, err := c.u8()
	if err != nil {
		return nil, err
	}
	stateCode, err := c.u8()
	if err != nil {
		return nil, err
	}

	rospec := map[string]interface{}{
		"ROSpecID":     id,
		"Priority":     priority,
		"CurrentState": roCurrentStateCode2Name[stateCode],
	}

	var durationSec float64
	err = forEachParam(c.b, func(ptype uint16, payload []byte) bool {
		switch ptype {
		case paramROSpecStopTrigger:
			pc := &cursor{payload}
			triggerType, _ := pc.u8()
			durationMs, _ := pc.u32()
			if triggerType == stopTriggerDuration {
				durationSec = float64(durationMs) / 1000.0
			}
		case paramAISpec:
			pc := &cursor{payload}
			n, _ := pc.u16()
			antennas := make([]uint16, 0, n)
			for i := uint16(0); i < n; i++ {
				a, e := pc.u16()
				if e != nil {
					break
				}
				antennas = append(antennas, a)
			}
			rospec["AntennaIDs"] = antennas
			if inv, ok := findParam(pc.b, paramRFTransmitterSettings); ok {
				ic := &cursor{inv}
				txIdx, _ := ic.u16()
				modeIdx, _ := ic.u32()
				session, _ := ic.u8()
				pop, _ := ic.u32()
				rospec["TxPowerIndex"] = txIdx
				rospec["RFModeIndex"] = modeIdx
				rospec["Session"] = session
				rospec["TagPopulation"] = pop
			}
		case paramROReportSpec:
			pc := &cursor{payload}
			n, _ := pc.u32()
			timeout, _ := pc.u32()
			rospec["ReportEveryNTags"] = n
			rospec["ReportTimeoutMs"] = timeout
			if selPayload, ok := findParam(pc.b, paramTagReportContentSelector); ok {
				sc := &cursor{selPayload}
				mask, _ := sc.u16()
				selector := map[string]bool{}
				for i, k := range tagContentSelectorFields {
					selector[k] = mask&(1<<uint(i)) != 0
				}
				rospec["TagContentSelector"] = selector
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	rospec["DurationSec"] = durationSec

	return rospec, nil
}

func encodeAddROSpec(fields map[string]interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	rospec, _ := fields["ROSpec"].(map[string]interface{})
	if rospec == nil {
		return nil, errors.New("ADD_ROSPEC requires a ROSpec")
	}
	putU32(buf, toUint32(fields["ROSpecID"]))
	writeParam(buf, paramROSpec, encodeROSpecValue(rospec))
	return buf.Bytes(), nil
}

func decodeAddROSpec(body []byte) (map[string]interface{}, error) {
	c := &cursor{body}
	id, err := c.u32()
	if err != nil {
		return nil, err
	}
	payload, ok := findParam(c.b, paramROSpec)
	if !ok {
		return nil, errors.New("missing ROSpec")
	}
	rospec, err := decodeROSpecValue(payload)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"ROSpecID": id, "ROSpec": rospec}, nil
}
