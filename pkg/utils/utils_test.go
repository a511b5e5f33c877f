package utils_test

import (
	"testing"

	"github.com/atlas-desktop/trading-backend/pkg/utils"
	"github.com/shopspring/decimal"
)

func TestFormatMoneyKnownCurrencies(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     string
	}{
		{"1234.5", "USD", "$1234.50"},
		{"0.00012345", "BTC", "0.00012345 BTC"},
		{"1.5", "eth", "1.500000 ETH"},
		{"10", "SOL", "10.0000 SOL"},
		{"7", "DOGE", "7 DOGE"},
	}
	for _, c := range cases {
		amount, err := decimal.NewFromString(c.amount)
		if err != nil {
			t.Fatalf("parsing %s: %v", c.amount, err)
		}
		if got := utils.FormatMoney(amount, c.currency); got != c.want {
			t.Errorf("FormatMoney(%s, %s) = %q, want %q", c.amount, c.currency, got, c.want)
		}
	}
}

func TestValidateWebhookURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://hooks.example.com/services/T00/B00/xyz", true},
		{"http://localhost/webhook", true},
		{"ftp://example.com/hook", false},
		{"not a url", false},
		{"", false},
	}
	for _, c := range cases {
		if got := utils.ValidateWebhookURL(c.url); got != c.want {
			t.Errorf("ValidateWebhookURL(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestClampDecimal(t *testing.T) {
	min := decimal.NewFromInt(2)
	max := decimal.NewFromInt(4)

	cases := []struct {
		value string
		want  string
	}{
		{"1", "2"},
		{"3", "3"},
		{"5", "4"},
	}
	for _, c := range cases {
		value, err := decimal.NewFromString(c.value)
		if err != nil {
			t.Fatalf("parsing %s: %v", c.value, err)
		}
		want, err := decimal.NewFromString(c.want)
		if err != nil {
			t.Fatalf("parsing %s: %v", c.want, err)
		}
		if got := utils.ClampDecimal(value, min, max); !got.Equal(want) {
			t.Errorf("ClampDecimal(%s, 2, 4) = %s, want %s", c.value, got, want)
		}
	}
}
