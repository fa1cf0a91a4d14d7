package numeric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		currency string
		want     float64
	}{
		{"decimal comma", "1.234,56", "", 1234.56},
		{"decimal point", "1,234.56", "", 1234.56},
		{"accounting negative decimal comma", "(1.234,56)", "", -1234.56},
		{"accounting negative decimal point", "(1,234.56)", "USD", -1234.56},
		{"leading minus", "-42", "", -42},
		{"unicode minus", "−5,5", "", -5.5},
		{"currency symbol prefix", "$ 1,200", "USD", 1200},
		{"euro suffix", "1.234,56 €", "EUR", 1234.56},
		{"comma two trailing digits", "12,50", "USD", 12.5},
		{"comma thousands", "1,234", "USD", 1234},
		{"comma decimal by currency", "1,234", "EUR", 1.234},
		{"many comma groups", "1,234,567", "EUR", 1234567},
		{"dot two trailing digits", "1.5", "EUR", 1.5},
		{"dot thousands by currency", "1.234", "EUR", 1234},
		{"dot decimal without hint", "1.234", "USD", 1.234},
		{"many dot groups", "1.234.567", "USD", 1234567},
		{"swiss apostrophe", "1'234.50", "CHF", 1234.5},
		{"spaces as thousands", "1 234 567", "", 1234567},
		{"plain integer", "98500", "", 98500},
		{"percent", "12.5%", "", 12.5},
		{"brl from currency table", "1.234", "BRL", 1234},
		{"leading decimal", ".75", "", 0.75},
		{"negative in parens with minus", "(-10)", "", -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw, tt.currency)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParse_SameAmountBothConventions(t *testing.T) {
	a, err := Parse("1.234,56", "EUR")
	require.NoError(t, err)
	b, err := Parse("1,234.56", "USD")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1234.56, a, 1e-9)
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrEmpty},
		{"whitespace", "   ", ErrEmpty},
		{"letters", "Total MRR", ErrUnparseable},
		{"dash placeholder", "-", ErrUnparseable},
		{"n/a", "N/A", ErrUnparseable},
		{"iso date", "2024-03-01", ErrUnparseable},
		{"double decimal", "1,2.3,4", ErrUnparseable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw, "EUR")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, got)
		})
	}
}

func TestUsesDecimalComma(t *testing.T) {
	assert.True(t, UsesDecimalComma("EUR"))
	assert.True(t, UsesDecimalComma("eur"))
	assert.True(t, UsesDecimalComma("BRL"))
	assert.False(t, UsesDecimalComma("USD"))
	assert.False(t, UsesDecimalComma("GBP"))
	assert.False(t, UsesDecimalComma(""))
	assert.False(t, UsesDecimalComma("XXX-not-a-code"))
}
