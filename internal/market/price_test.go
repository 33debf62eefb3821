package market

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"45", 45},
		{"45,50 €", 45.5},
		{"€ 1 200", 1200},
		{"1 200,00 €", 1200},
		{"$12.99", 12.99},
		{"£1,250.75", 1250.75},
		{"1.234,56 €", 1234.56},
		{"1,200", 1200},
		{"1.200 €", 1200},
		{"45,500 €", 45.5},
		{"EUR 12,990", 12.99},
		{"1,200,000 €", 1200000},
		{"$1,200", 1200},
		{"12,5", 12.5},
		{"EUR 30.", 30},
		{"free", 0},
		{"Gratuit", 0},
		{"", 0},
		{"€", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParsePrice(tt.input), 0.0001)
		})
	}
}

func TestParsePrice_IdempotentOnCleanNumbers(t *testing.T) {
	for _, v := range []string{"1", "45", "99.9", "1200"} {
		first := ParsePrice(v)
		assert.Equal(t, first, ParsePrice(strconv.FormatFloat(first, 'f', -1, 64)))
	}
}

func TestDetectCurrency(t *testing.T) {
	assert.Equal(t, "EUR", DetectCurrency("45 €", "USD"))
	assert.Equal(t, "GBP", DetectCurrency("£12", "EUR"))
	assert.Equal(t, "USD", DetectCurrency("US $12.00", "EUR"))
	assert.Equal(t, "EUR", DetectCurrency("12", "EUR"))
}

func TestParseRating(t *testing.T) {
	r, ok := ParseRating("4,8 (123 avis)")
	assert.True(t, ok)
	assert.InDelta(t, 4.8, r, 0.0001)

	r, ok = ParseRating("4.9")
	assert.True(t, ok)
	assert.InDelta(t, 4.9, r, 0.0001)

	_, ok = ParseRating("no reviews yet")
	assert.False(t, ok)
}
