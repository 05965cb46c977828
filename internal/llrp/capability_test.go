package llrp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParsePowerTableDoctest reproduces sllurp's LLRPProtocol.parsePowerTable
// doctest: a single table entry {Index:1, TransmitPowerValue:3225} yields
// [0, 32.25].
func TestParsePowerTableDoctest(t *testing.T) {
	band := map[string]interface{}{
		"TransmitPowerTable": []map[string]interface{}{
			{"Index": uint16(1), "TransmitPowerValue": uint16(3225)},
		},
	}
	table := parsePowerTable(band)
	require.Len(t, table, 2)
	assert.Equal(t, 0.0, table[0])
	assert.Equal(t, 32.25, table[1])
}

func TestGetReaderCapabilitiesResponseRoundTrip(t *testing.T) {
	fields := map[string]interface{}{
		"LLRPStatus": map[string]interface{}{"StatusCode": "Success"},
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
	body, err := encodeGetReaderCapabilitiesResponse(fields)
	require.NoError(t, err)

	decoded, err := decodeGetReaderCapabilitiesResponse(body)
	require.NoError(t, err)

	caps, err := parseCapabilities(decoded)
	require.NoError(t, err)
	assert.EqualValues(t, 2, caps.MaxAntennas)
	assert.Equal(t, []PowerTableEntry{0, 32.25}, caps.PowerTable)
	require.Len(t, caps.RFModeTable, 1)
	assert.EqualValues(t, 2, caps.RFModeTable[0].Mod)
	assert.EqualValues(t, 25000, caps.RFModeTable[0].MaxTari)
}

func TestNegotiateCapabilitiesFallsBackToFirstMode(t *testing.T) {
	caps := &Capabilities{
		MaxAntennas: 4,
		PowerTable:  []PowerTableEntry{0, 20, 30},
		RFModeTable: []RFMode{
			{ModeIndex: 0, Mod: 0, MaxTari: 25000}, // FM0, not M4
			{ModeIndex: 1, Mod: 1, MaxTari: 25000}, // M2, not M4
		},
	}
	// No RF mode matches M4, so negotiateCapabilities must fall back to the
	// first entry rather than failing, per spec.md's "find first match, else
	// fall back" policy (preserved verbatim from the original).
	nc, err := negotiateCapabilities(caps, []int{1, 2}, 1, "M4", 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, nc.Antennas)
	assert.Equal(t, caps.RFModeTable[0], nc.RFMode)
}

func TestNegotiateCapabilitiesExactMatch(t *testing.T) {
	caps := &Capabilities{
		MaxAntennas: 4,
		PowerTable:  []PowerTableEntry{0, 20, 30},
		RFModeTable: []RFMode{
			{ModeIndex: 0, Mod: 0, MaxTari: 25000},
			{ModeIndex: 1, Mod: 2, MaxTari: 25000},
		},
	}
	nc, err := negotiateCapabilities(caps, []int{1}, 2, "M4", 25000)
	require.NoError(t, err)
	assert.Equal(t, caps.RFModeTable[1], nc.RFMode)
	assert.Equal(t, 2, nc.TxPowerIdx)
}

func TestNegotiateCapabilitiesRejectsUnsupportedAntenna(t *testing.T) {
	caps := &Capabilities{MaxAntennas: 1, PowerTable: []PowerTableEntry{0, 20}}
	_, err := negotiateCapabilities(caps, []int{5}, 0, "M4", 0)
	require.Error(t, err)
	var cme *CapabilityMismatchError
	assert.ErrorAs(t, err, &cme)
}

func TestSelectTxPowerZeroMeansMax(t *testing.T) {
	idx, dbm, err := selectTxPower([]PowerTableEntry{0, 10, 30, 20}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, PowerTableEntry(30), dbm)
}

func TestSelectTxPowerOutOfRange(t *testing.T) {
	_, _, err := selectTxPower([]PowerTableEntry{0, 10}, 5)
	require.Error(t, err)
	var ip *InvalidTxPowerError
	assert.ErrorAs(t, err, &ip)
}
