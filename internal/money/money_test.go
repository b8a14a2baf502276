package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse("1234.56")
	require.NoError(t, err)
	assert.Equal(t, "1234.56", Format(d))

	// Rounds half away from zero to 2 places
	d, err = Parse("0.005")
	require.NoError(t, err)
	assert.Equal(t, "0.01", Format(d))

	d, err = Parse("-0.005")
	require.NoError(t, err)
	assert.Equal(t, "-0.01", Format(d))

	_, err = Parse("not-a-number")
	assert.Error(t, err)

	_, err = Parse("")
	assert.Error(t, err)
}

func TestWithinTolerance(t *testing.T) {
	cases := []struct {
		diff   string
		within bool
	}{
		{"0.00", true},
		{"0.01", true},
		{"-0.01", true},
		{"0.02", false},
		{"-0.02", false},
		{"100.00", false},
	}

	for _, tc := range cases {
		d := decimal.RequireFromString(tc.diff)
		assert.Equal(t, tc.within, WithinTolerance(d), "diff %s", tc.diff)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.00", Format(decimal.Zero))
	assert.Equal(t, "5.50", Format(MustParse("5.5")))
	assert.Equal(t, "-3.20", Format(MustParse("-3.2")))
}
