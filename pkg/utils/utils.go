// Package utils holds the small formatting/validation helpers shared
// across notification and configuration code — the pieces too small
// to warrant their own package.
package utils

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney formats a decimal amount with the given currency's
// conventional symbol and precision.
func FormatMoney(d decimal.Decimal, currency string) string {
	switch strings.ToUpper(currency) {
	case "USD", "USDT", "USDC":
		return "$" + d.StringFixed(2)
	case "BTC":
		return d.StringFixed(8) + " BTC"
	case "ETH":
		return d.StringFixed(6) + " ETH"
	case "SOL":
		return d.StringFixed(4) + " SOL"
	default:
		return d.String() + " " + currency
	}
}

var webhookURLPattern = regexp.MustCompile(`^https?://[a-zA-Z0-9.-]+(/[a-zA-Z0-9._/-]*)?$`)

// ValidateWebhookURL reports whether url looks like a usable HTTP(S)
// webhook endpoint. It is a shape check, not a reachability check.
func ValidateWebhookURL(url string) bool {
	return webhookURLPattern.MatchString(url)
}

// ClampDecimal restricts value to [min, max].
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}
