package llrp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildROSpecRejectsZeroID(t *testing.T) {
	_, err := BuildROSpec(ROSpecConfig{Antennas: []int{1}})
	require.Error(t, err)
}

func TestBuildROSpecRejectsNoAntennas(t *testing.T) {
	_, err := BuildROSpec(ROSpecConfig{ROSpecID: 1})
	require.Error(t, err)
}

func TestBuildROSpecDefaults(t *testing.T) {
	rospec, err := BuildROSpec(ROSpecConfig{
		ROSpecID: 1,
		Antennas: []int{1, 2},
		Session:  0,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, rospec["ReportEveryNTags"].(uint32))
	assert.EqualValues(t, 1, rospec["TagPopulation"].(uint32))
	assert.Equal(t, "Disabled", rospec["CurrentState"])
}

func TestBuildROSpecRejectsBadSession(t *testing.T) {
	_, err := BuildROSpec(ROSpecConfig{ROSpecID: 1, Antennas: []int{1}, Session: 9})
	require.Error(t, err)
}

func TestAddROSpecRoundTrip(t *testing.T) {
	cfg := ROSpecConfig{
		ROSpecID:         5,
		DurationSec:      10,
		ReportEveryNTags: 4,
		ReportTimeoutMs:  500,
		Antennas:         []int{1, 2},
		Session:          2,
		TagPopulation:    32,
		RFMode:           RFMode{ModeIndex: 0, Mod: 2, MaxTari: 25000},
		TagContentSelector: map[string]bool{
			"EnableAntennaID":  true,
			"EnablePeakRSSI":   true,
			"EnableROSpecID":   false,
		},
	}
	rospec, err := BuildROSpec(cfg)
	require.NoError(t, err)

	body, err := encodeAddROSpec(map[string]interface{}{"ROSpecID": cfg.ROSpecID, "ROSpec": rospec})
	require.NoError(t, err)

	decoded, err := decodeAddROSpec(body)
	require.NoError(t, err)
	assert.EqualValues(t, 5, decoded["ROSpecID"])

	out := decoded["ROSpec"].(map[string]interface{})
	assert.EqualValues(t, 5, out["ROSpecID"])
	assert.Equal(t, 10.0, out["DurationSec"])
	assert.Equal(t, []uint16{1, 2}, out["AntennaIDs"])
	assert.EqualValues(t, 2, out["Session"])
	assert.EqualValues(t, 32, out["TagPopulation"])

	selector := out["TagContentSelector"].(map[string]bool)
	assert.True(t, selector["EnableAntennaID"])
	assert.True(t, selector["EnablePeakRSSI"])
	assert.False(t, selector["EnableROSpecID"])
}

func TestAddROSpecNoDurationTrigger(t *testing.T) {
	cfg := ROSpecConfig{ROSpecID: 1, Antennas: []int{1}}
	rospec, err := BuildROSpec(cfg)
	require.NoError(t, err)

	body, err := encodeAddROSpec(map[string]interface{}{"ROSpecID": cfg.ROSpecID, "ROSpec": rospec})
	require.NoError(t, err)

	decoded, err := decodeAddROSpec(body)
	require.NoError(t, err)
	out := decoded["ROSpec"].(map[string]interface{})
	assert.Equal(t, 0.0, out["DurationSec"])
}
