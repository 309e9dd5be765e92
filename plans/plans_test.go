package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable_Select(t *testing.T) {
	tbl := DefaultTable()

	cases := []struct {
		amount float64
		want   int
	}{
		{0.00, 0},
		{0.03, 0},
		{0.05, 30},
		{0.99, 30},
		{1.00, 60},
		{1.49, 60},
		{1.50, 180},
		{2.00, 365},
		{40.00, 365}, // large payments cap at the top tier
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tbl.Select(tc.amount), "amount $%.2f", tc.amount)
	}
}

func TestSelect_EpsilonAbsorbsRoundingDrift(t *testing.T) {
	tbl := DefaultTable()

	// Price feeds often land a hair under the threshold.
	assert.Equal(t, 60, tbl.Select(0.999))
	assert.Equal(t, 365, tbl.Select(1.995))

	// But a full cent short does not qualify.
	assert.Equal(t, 30, tbl.Select(0.98))
}

func TestSelect_Monotonic(t *testing.T) {
	tbl := DefaultTable()

	prev := 0
	for cents := 0; cents <= 300; cents++ {
		got := tbl.Select(float64(cents) / 100)
		require.GreaterOrEqual(t, got, prev, "tier must never shrink as the amount grows")
		prev = got
	}
}

func TestNewTable_Validation(t *testing.T) {
	_, err := NewTable(nil)
	assert.Error(t, err)

	_, err = NewTable(map[int]float64{0: 1})
	assert.Error(t, err)

	_, err = NewTable(map[int]float64{30: -1})
	assert.Error(t, err)

	// More days must cost more.
	_, err = NewTable(map[int]float64{30: 2.00, 365: 1.00})
	assert.Error(t, err)
}

func TestParseTable(t *testing.T) {
	tbl, err := ParseTable(`{"30": 0.10, "90": 1.00}`)
	require.NoError(t, err)
	assert.Equal(t, 30, tbl.Select(0.10))
	assert.Equal(t, 90, tbl.Select(1.00))

	_, err = ParseTable(`{"a month": 0.10}`)
	assert.Error(t, err)

	_, err = ParseTable(`not json`)
	assert.Error(t, err)
}

func TestTiers_Roundtrip(t *testing.T) {
	tbl := DefaultTable()
	assert.Equal(t, map[int]float64{30: 0.05, 60: 1.00, 180: 1.50, 365: 2.00}, tbl.Tiers())
}
