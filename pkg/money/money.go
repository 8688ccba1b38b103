package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrPrecision        = errors.New("amount has more precision than the currency allows")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidSplit     = errors.New("amount cannot be split into the requested parts")
)

// Money is a fixed-point amount held as integer minor units.
type Money struct {
	Amount   int64    `json:"-"`
	Currency Currency `json:"-"`
}

// New builds Money from minor units.
func New(minor int64, c Currency) Money {
	return Money{Amount: minor, Currency: c}
}

// Zero returns a zero amount in c.
func Zero(c Currency) Money {
	return Money{Currency: c}
}

// maxAmountLen bounds the raw text Parse accepts. No int64 amount needs more.
const maxAmountLen = 40

// maxScale bounds the exponent of a minor-unit amount. 10^19 already exceeds int64.
const maxScale = 18

// FromDecimal converts a major-unit decimal into Money. Fractions finer than
// the currency's minor unit are rejected rather than rounded.
func FromDecimal(d decimal.Decimal, c Currency) (Money, error) {
	if !c.IsValid() {
		return Money{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, string(c))
	}
	if d.IsZero() {
		return Zero(c), nil
	}

	// checked before Shift, which would expand the coefficient
	scale := int64(d.Exponent()) + int64(c.Exponent())
	if d.Coefficient().BitLen() > 63 || scale > maxScale {
		return Money{}, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	if scale < -maxScale {
		return Money{}, fmt.Errorf("%w for %s", ErrPrecision, c)
	}

	minor := d.Shift(c.Exponent())
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("%w: %s %s", ErrPrecision, d.String(), c)
	}
	if minor.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || minor.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return Money{}, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return Money{Amount: minor.IntPart(), Currency: c}, nil
}

// Parse reads a decimal string such as "333.50" in major units.
func Parse(s string, c Currency) (Money, error) {
	if len(s) > maxAmountLen {
		return Money{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidAmount, maxAmountLen)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d, c)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -m.Currency.Exponent())
}

// StringFixed formats the major-unit amount with the currency's minor digits.
func (m Money) StringFixed() string {
	return m.Decimal().StringFixed(m.Currency.Exponent())
}

func (m Money) String() string {
	return string(m.Currency) + " " + m.StringFixed()
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Add returns m+o. Both operands must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	if (o.Amount > 0 && m.Amount > math.MaxInt64-o.Amount) || (o.Amount < 0 && m.Amount < math.MinInt64-o.Amount) {
		return Money{}, fmt.Errorf("%w: overflow", ErrInvalidAmount)
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
}

// Sub returns m-o. Both operands must share a currency.
func (m Money) Sub(o Money) (Money, error) {
	return m.Add(Money{Amount: -o.Amount, Currency: o.Currency})
}

// Cmp compares amounts: -1, 0 or +1. Currencies are assumed to match.
func (m Money) Cmp(o Money) int {
	switch {
	case m.Amount < o.Amount:
		return -1
	case m.Amount > o.Amount:
		return 1
	}
	return 0
}

// Split divides m into n parts. Every part but the last is a multiple of unit
// minor units; the last absorbs the remainder so the parts always sum to m.
// When unit is too coarse to give every part a positive amount the split
// falls back to one minor unit.
func (m Money) Split(n int, unit int64) ([]Money, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d parts", ErrInvalidSplit, n)
	}
	if m.Amount <= 0 {
		return nil, fmt.Errorf("%w: non-positive total", ErrInvalidSplit)
	}
	if unit < 1 {
		unit = 1
	}

	base := (m.Amount / int64(n) / unit) * unit
	if base == 0 {
		base = m.Amount / int64(n)
	}
	if base == 0 {
		return nil, fmt.Errorf("%w: %s into %d parts", ErrInvalidSplit, m, n)
	}

	parts := make([]Money, n)
	for i := 0; i < n-1; i++ {
		parts[i] = Money{Amount: base, Currency: m.Currency}
	}
	parts[n-1] = Money{Amount: m.Amount - base*int64(n-1), Currency: m.Currency}
	return parts, nil
}

// Sum adds amounts in c. An empty slice sums to zero.
func Sum(c Currency, items ...Money) (Money, error) {
	total := Zero(c)
	for _, it := range items {
		var err error
		if total, err = total.Add(it); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

func (m Money) sameCurrency(o Money) error {
	if m.Currency != o.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return nil
}

type moneyJSON struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

// MarshalJSON renders {"amount":"333.00","currency":"PKR"}.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.StringFixed(), Currency: m.Currency})
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
