package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"100", "100.00"},
		{"100.0", "100.00"},
		{"100.00", "100.00"},
		{"10000.50", "10000.50"},
		{"0.5", "0.50"},
		{"0.005", "0.005"},
		{"1.100", "1.100"},
		{"1000", "1000.00"},
	}

	for _, tc := range cases {
		d, err := decimal.NewFromString(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, CanonicalAmount(d), "input %s", tc.in)
	}
}

func TestAllowListMembership(t *testing.T) {
	assert.True(t, ValidCurrency("USD"))
	assert.False(t, ValidCurrency("XXX"))

	assert.True(t, ValidType(TypeRefund))
	assert.False(t, ValidType("INVALID"))

	assert.True(t, ValidStatus(StatusProcessing))
	assert.False(t, ValidStatus("UNKNOWN"))

	assert.True(t, ValidCountryCode("CL"))
	assert.False(t, ValidCountryCode("XX"))
}

func TestFinalStatuses(t *testing.T) {
	for _, s := range FinalStatuses {
		assert.True(t, IsFinalStatus(s))
	}
	assert.False(t, IsFinalStatus(StatusPending))
	assert.False(t, IsFinalStatus(StatusProcessing))
}
