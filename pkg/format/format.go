// Package format turns raw on-chain integers into the strings shown on the dashboard,
// and parses user-typed amounts back into base units.
package format

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	oneMillion  = decimal.NewFromInt(1_000_000)
	oneThousand = decimal.NewFromInt(1_000)
	oneHundreth = decimal.New(1, -2)
)

// ParseToWei converts a human amount ("1.5") into base units. Empty, unparsable,
// zero and negative input all yield zero; callers treat zero as "do nothing".
func ParseToWei(value string, decimals int32) *big.Int {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(big.Int)
	}
	d, err := decimal.NewFromString(value)
	if err != nil || !d.IsPositive() {
		return new(big.Int)
	}
	return d.Shift(decimals).Floor().BigInt()
}

// FormatUnits renders a base-unit amount at full precision, e.g. for a "max" button.
func FormatUnits(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -decimals).String()
}

// FormatNumber buckets a base-unit integer string into "0", "<0.01", "1.23", "4.56K" or "7.89M".
func FormatNumber(raw string, decimals int32) string {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		v = new(big.Int)
	}
	return FormatAmount(v, decimals)
}

func FormatAmount(raw *big.Int, decimals int32) string {
	if raw == nil || raw.Sign() == 0 {
		return "0"
	}
	num := decimal.NewFromBigInt(raw, -decimals)
	switch {
	case num.LessThan(oneHundreth):
		return "<0.01"
	case num.GreaterThanOrEqual(oneMillion):
		return num.Div(oneMillion).StringFixed(2) + "M"
	case num.GreaterThanOrEqual(oneThousand):
		return num.Div(oneThousand).StringFixed(2) + "K"
	default:
		return num.StringFixed(2)
	}
}

// FormatCountdown describes how long until periodFinish (unix seconds).
func FormatCountdown(periodFinish int64) string {
	return FormatCountdownAt(periodFinish, time.Now())
}

func FormatCountdownAt(periodFinish int64, now time.Time) string {
	remaining := periodFinish - now.Unix()
	if remaining <= 0 {
		return "Ended"
	}
	days := remaining / 86400
	hours := (remaining % 86400) / 3600
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	minutes := (remaining % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func FormatUsd(value float64) string {
	d := decimal.NewFromFloat(value)
	switch {
	case d.GreaterThanOrEqual(oneMillion):
		return "$" + d.Div(oneMillion).StringFixed(2) + "M"
	case d.GreaterThanOrEqual(oneThousand):
		return "$" + d.Div(oneThousand).StringFixed(2) + "K"
	case d.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return "$" + d.StringFixed(2)
	default:
		return "$" + d.StringFixed(4)
	}
}

// TruncateAddress shortens 0xabcdef...1234 style addresses for display.
func TruncateAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
