package format

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCurrency(t *testing.T) {
	tests := map[string]string{
		"10000":     "$10,000.00",
		"0":         "$0.00",
		"1234.567":  "$1,234.57",
		"-1000":     "-$1,000.00",
		"0.1":       "$0.10",
		"987654.32": "$987,654.32",
	}
	for in, want := range tests {
		assert.Equal(t, want, Currency(d(in)), in)
	}
}

func TestNumber(t *testing.T) {
	assert.Equal(t, "64,123.45", Number(d("64123.4512"), 2))
	assert.Equal(t, "64,123", Number(d("64123.4512"), 0))
	assert.Equal(t, "0.500", Number(d("0.5"), 3))
}

func TestBTC(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "0", want: "0.00000000"},
		{in: "0.00001234", want: "0.00001234"},
		{in: "0.00005", want: "0.00005000"},
		{in: "0.1", want: "0.100000"},
		{in: "0.12345678", want: "0.12345678"},
		{in: "1.5", want: "1.5000"},
		{in: "1234.5", want: "1,234.5000"},
		{in: "2.123456789", want: "2.12345679"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BTC(d(tt.in)), tt.in)
	}
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, "+10.00%", Percentage(d("10")))
	assert.Equal(t, "+0.00%", Percentage(decimal.Zero))
	assert.Equal(t, "-3.21%", Percentage(d("-3.2149")))
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{ago: 2 * time.Second, want: "just now"},
		{ago: 42 * time.Second, want: "42s ago"},
		{ago: 5*time.Minute + 10*time.Second, want: "5m ago"},
		{ago: 3 * time.Hour, want: "3h ago"},
		{ago: 5 * 24 * time.Hour, want: "5 days ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RelativeTime(now.Add(-tt.ago), now))
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(10, 0, 5))
	assert.Equal(t, 0, Clamp(-1, 0, 5))
	assert.Equal(t, 3, Clamp(3, 0, 5))
}
