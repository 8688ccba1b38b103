package money

import (
	"errors"
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code from the fixed set the portal bills in.
type Currency string

const (
	USD Currency = "USD"
	PKR Currency = "PKR"
	SAR Currency = "SAR"
	AED Currency = "AED"
	INR Currency = "INR"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// minor unit digits per currency
var exponents = map[Currency]int32{
	USD: 2,
	PKR: 2,
	SAR: 2,
	AED: 2,
	INR: 2,
	EUR: 2,
	GBP: 2,
}

// ErrUnknownCurrency is returned for codes outside the supported set.
var ErrUnknownCurrency = errors.New("unknown currency")

// ParseCurrency normalises and validates a currency code.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return c, nil
}

// IsValid reports whether c is one of the supported currencies.
func (c Currency) IsValid() bool {
	_, ok := exponents[c]
	return ok
}

// Exponent returns the number of minor-unit digits.
func (c Currency) Exponent() int32 {
	return exponents[c]
}

// MinorPerMajor returns how many minor units make one major unit (100 for cents).
func (c Currency) MinorPerMajor() int64 {
	n := int64(1)
	for i := int32(0); i < c.Exponent(); i++ {
		n *= 10
	}
	return n
}

// Supported lists the supported currency codes in a stable order.
func Supported() []Currency {
	return []Currency{USD, PKR, SAR, AED, INR, EUR, GBP}
}

func (c Currency) String() string {
	return string(c)
}
