// Package pricing normalizes raw prices into the canonical stored form.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MaxFractionDigits = 2
	MaxIntegerDigits  = 6
)

var (
	ErrInvalidPrice          = errors.New("invalid price")
	ErrTooManyFractionDigits = errors.New("price cannot have more than 2 decimal places")
	ErrTooManyIntegerDigits  = errors.New("price cannot have more than 6 digits before the decimal")
)

// charm is added to whole-number prices.
var charm = decimal.RequireFromString("0.99")

// Normalize parses raw and returns the price to store.
//
// Digit limits are checked against the value as written; a whole number that
// passes them is bumped by 0.99. The result always has two fraction digits.
func Normalize(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty", ErrInvalidPrice)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is negative", ErrInvalidPrice, raw)
	}
	if -d.Exponent() > MaxFractionDigits {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrTooManyFractionDigits, raw)
	}
	if integerDigits(d) > MaxIntegerDigits {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrTooManyIntegerDigits, raw)
	}
	if d.Equal(d.Truncate(0)) {
		d = d.Add(charm)
	}
	return d.Round(MaxFractionDigits), nil
}

// integerDigits counts digits before the decimal point the way they are
// written: coefficient length plus exponent.
func integerDigits(d decimal.Decimal) int {
	coef := d.Coefficient()
	coef.Abs(coef)
	return len(coef.String()) + int(d.Exponent())
}

// Policy decides where the charm rule applies. Creation always normalizes.
type Policy struct {
	CharmOnUpdate bool
}

// DefaultPolicy applies the charm rule on both creation and edits.
func DefaultPolicy() Policy { return Policy{CharmOnUpdate: true} }

// ForCreate normalizes a price for a new listing.
func (p Policy) ForCreate(raw string) (decimal.Decimal, error) {
	return Normalize(raw)
}

// ForUpdate normalizes a price for an edit. With CharmOnUpdate disabled the
// digit checks still run but the value is stored as given.
func (p Policy) ForUpdate(raw string) (decimal.Decimal, error) {
	if p.CharmOnUpdate {
		return Normalize(raw)
	}
	if _, err := Normalize(raw); err != nil {
		return decimal.Decimal{}, err
	}
	d, _ := decimal.NewFromString(strings.TrimSpace(raw))
	return d.Round(MaxFractionDigits), nil
}
