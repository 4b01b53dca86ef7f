// Package types - Currency and monetary rounding
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents an ISO-4217 currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCNY Currency = "CNY"
	CurrencyXOF Currency = "XOF"
	CurrencyNGN Currency = "NGN"
	CurrencyKES Currency = "KES"
	CurrencyJPY Currency = "JPY"
)

// String returns the string representation
func (c Currency) String() string {
	return string(c)
}

// ParseCurrency normalises and validates a currency code
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency code %q", code)
	}
	return c, nil
}

// IsValid reports whether c looks like a three-letter ISO code
func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

var zeroDecimalCurrencies = map[Currency]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "ISK": true, "JPY": true,
	"KMF": true, "KRW": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

var threeDecimalCurrencies = map[Currency]bool{
	"BHD": true, "IQD": true, "JOD": true, "KWD": true, "LYD": true, "OMR": true, "TND": true,
}

// MinorUnits returns the number of decimal places of the currency's smallest denomination
func (c Currency) MinorUnits() int32 {
	switch {
	case zeroDecimalCurrencies[c]:
		return 0
	case threeDecimalCurrencies[c]:
		return 3
	default:
		return 2
	}
}

// MinorUnit returns the value of one minor unit (0.01 for USD, 1 for XOF)
func (c Currency) MinorUnit() decimal.Decimal {
	return decimal.New(1, -c.MinorUnits())
}

var half = decimal.New(5, -1)

// RoundHalfUp rounds d to places decimal places, exact halves toward positive infinity
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Shift(places).Add(half).Floor().Shift(-places)
}

// RoundMoney applies the shared rounding policy: round half up to the currency's minor unit.
// Every monetary figure the engine emits passes through here.
func RoundMoney(amount decimal.Decimal, currency Currency) decimal.Decimal {
	return RoundHalfUp(amount, currency.MinorUnits())
}

// ParseDecimal parses an optional decimal string; empty means zero
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Money is an amount tagged with its currency
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

// String returns the amount at the currency's precision followed by the code
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(m.Currency.MinorUnits()), m.Currency)
}
