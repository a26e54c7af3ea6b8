package enums

import "strings"

// Currency is the lower-case ISO code Stripe reports on checkout sessions.
type Currency string

const (
	CurrencyEUR Currency = "eur"
	CurrencyUSD Currency = "usd"
	CurrencyGBP Currency = "gbp"
)

var currencies = valueSet[Currency]{CurrencyEUR, CurrencyUSD, CurrencyGBP}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return currencies.has(c) }

// ParseCurrency ignores case, so "EUR" and "eur" are the same currency.
func ParseCurrency(value string) (Currency, error) {
	return currencies.parse(strings.ToLower(strings.TrimSpace(value)), "currency")
}
