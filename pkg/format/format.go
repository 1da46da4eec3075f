// Package format renders money, BTC amounts, percentages and ages for display.
package format

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Currency formats a USD amount with a dollar sign, thousands separators and cents, e.g. $10,000.00.
func Currency(value decimal.Decimal) string {
	cents := value.Shift(2).Round(0).IntPart()

	return money.New(cents, money.USD).Display()
}

// Number formats value with thousands separators and exactly decimals fraction digits.
func Number(value decimal.Decimal, decimals int) string {
	decimals = Clamp(decimals, 0, 8)
	f, _ := value.Round(int32(decimals)).Float64()

	layout := "#,###."
	if decimals > 0 {
		layout += strings.Repeat("#", decimals)
	}

	return humanize.FormatFloat(layout, f)
}

// BTC formats an asset amount. Small amounts get more fraction digits, never more than 8.
func BTC(value decimal.Decimal) string {
	if value.IsZero() {
		return "0.00000000"
	}

	minDecimals := 4
	switch abs := value.Abs(); {
	case abs.LessThan(decimal.RequireFromString("0.0001")):
		minDecimals = 8
	case abs.LessThan(decimal.NewFromInt(1)):
		minDecimals = 6
	}

	fixed := value.Round(8).StringFixed(8)
	intPart, frac, _ := strings.Cut(fixed, ".")
	frac = strings.TrimRight(frac, "0")
	if len(frac) < minDecimals {
		frac += strings.Repeat("0", minDecimals-len(frac))
	}

	sign := ""
	if strings.HasPrefix(intPart, "-") {
		sign, intPart = "-", intPart[1:]
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return fixed
	}

	return fmt.Sprintf("%s%s.%s", sign, humanize.Comma(whole), frac)
}

// Percentage formats value with a sign and two decimals, e.g. +10.00%.
func Percentage(value decimal.Decimal) string {
	sign := ""
	if !value.IsNegative() {
		sign = "+"
	}

	return sign + value.StringFixed(2) + "%"
}

// RelativeTime describes how long ago t was, relative to now.
func RelativeTime(t, now time.Time) string {
	seconds := int64(now.Sub(t) / time.Second)

	switch {
	case seconds < 5:
		return "just now"
	case seconds < 60:
		return fmt.Sprintf("%ds ago", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm ago", seconds/60)
	case seconds < 48*3600:
		return fmt.Sprintf("%dh ago", seconds/3600)
	default:
		return humanize.RelTime(t, now, "ago", "from now")
	}
}

// Clamp limits value to [lo, hi].
func Clamp[T cmp.Ordered](value, lo, hi T) T {
	return min(max(value, lo), hi)
}
