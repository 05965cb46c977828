package llrp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAccessSpecRejectsZeroID(t *testing.T) {
	_, err := BuildAccessSpec(AccessSpecConfig{Op: AccessOpSpec{Kind: "Read"}})
	require.Error(t, err)
}

func TestBuildAccessSpecRejectsUnknownOp(t *testing.T) {
	_, err := BuildAccessSpec(AccessSpecConfig{AccessSpecID: 1, Op: AccessOpSpec{Kind: "Explode"}})
	require.Error(t, err)
}

func TestAddAccessSpecReadRoundTrip(t *testing.T) {
	cfg := AccessSpecConfig{
		AccessSpecID: 9,
		AntennaID:    1,
		ROSpecID:     5,
		TagMask:      []byte{0xDE, 0xAD},
		Op: AccessOpSpec{
			Kind:      "Read",
			MB:        3,
			WordPtr:   2,
			WordCount: 4,
		},
		StopAfterN: 1,
	}
	spec, err := BuildAccessSpec(cfg)
	require.NoError(t, err)

	body, err := encodeAddAccessSpec(map[string]interface{}{"AccessSpec": spec})
	require.NoError(t, err)

	decoded, err := decodeAddAccessSpec(body)
	require.NoError(t, err)
	out := decoded["AccessSpec"].(map[string]interface{})

	assert.EqualValues(t, 9, out["AccessSpecID"])
	assert.EqualValues(t, 1, out["AntennaID"])
	assert.EqualValues(t, 5, out["ROSpecID"])
	assert.EqualValues(t, 1, out["StopAfterN"])
	assert.Equal(t, []byte{0xDE, 0xAD}, out["TagMask"])

	op := out["Op"].(AccessOpSpec)
	assert.Equal(t, "Read", op.Kind)
	assert.EqualValues(t, 3, op.MB)
	assert.EqualValues(t, 2, op.WordPtr)
	assert.EqualValues(t, 4, op.WordCount)
}

func TestAddAccessSpecWriteRoundTrip(t *testing.T) {
	cfg := AccessSpecConfig{
		AccessSpecID: 1,
		Op: AccessOpSpec{
			Kind:      "Write",
			MB:        1,
			WordPtr:   0,
			WriteData: []byte{0x00, 0x01, 0x00, 0x02},
		},
	}
	spec, err := BuildAccessSpec(cfg)
	require.NoError(t, err)

	body, err := encodeAddAccessSpec(map[string]interface{}{"AccessSpec": spec})
	require.NoError(t, err)

	decoded, err := decodeAddAccessSpec(body)
	require.NoError(t, err)
	out := decoded["AccessSpec"].(map[string]interface{})
	op := out["Op"].(AccessOpSpec)
	assert.Equal(t, "Write", op.Kind)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02}, op.WriteData)
}
