package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	sep24 := time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"Sep-24", sep24},
		{"sep 24", sep24},
		{"Sept. 2024", sep24},
		{"September 2024", sep24},
		{"Sep'24", sep24},
		{"2024-09", sep24},
		{"2024-09-01", sep24},
		{"2024/09/30", sep24},
		{"09/2024", sep24},
		{"9-2024", sep24},
		{"01/09/2024", sep24},
		{"30/09/2024", sep24},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseText(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseText_Rejects(t *testing.T) {
	for _, in := range []string{"", "Total MRR", "Actual", "13/2024", "2024-13", "Foo-24", "05/06/2024", "1234"} {
		_, ok := ParseText(in)
		assert.False(t, ok, in)
	}
}

func TestParseSerial(t *testing.T) {
	// 45536 is 2024-09-01 in the 1900 date system.
	got, ok := ParseSerial(45536)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParseSerial(1234.56)
	assert.False(t, ok)
}

func TestIsHeaderSerial(t *testing.T) {
	assert.True(t, IsHeaderSerial(45536), "2024-09-01")
	assert.True(t, IsHeaderSerial(45565), "2024-09-30")
	assert.False(t, IsHeaderSerial(45550), "mid-month amount")
	assert.False(t, IsHeaderSerial(45536.5))
	assert.False(t, IsHeaderSerial(1200))
}

func TestIsDateLike(t *testing.T) {
	for _, in := range []string{"Mar-24", "Q1 2024", "FY24", "FY 2024", "H1'24", "2024 Q3", "Jan", "March"} {
		assert.True(t, IsDateLike(in), in)
	}
	for _, in := range []string{"Total MRR", "Revenue", "Cash balance", "Marketing"} {
		assert.False(t, IsDateLike(in), in)
	}
	assert.True(t, IsMonthName("Dec."))
	assert.False(t, IsMonthName("Decimal"))
}
