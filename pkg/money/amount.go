// Package money holds the fixed-scale monetary amount used across payroll.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits stored and emitted.
const Scale int32 = 6

// Epsilon is the tolerance used when comparing settled amounts.
var Epsilon = decimal.New(1, -Scale)

// Amount is a decimal amount that marshals to JSON as a number with exactly
// Scale fractional digits.
type Amount struct {
	d decimal.Decimal
}

var Zero = Amount{}

func New(d decimal.Decimal) Amount { return Amount{d: d.Round(Scale)} }

func FromInt(v int64) Amount { return Amount{d: decimal.NewFromInt(v)} }

func FromFloat(v float64) Amount { return New(decimal.NewFromFloat(v)) }

func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return New(d), nil
}

func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal { return a.d }

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }

func (a Amount) Abs() Amount { return Amount{d: a.d.Abs()} }

// MulRatio returns a*num/den rounded to Scale. A zero den yields zero.
func (a Amount) MulRatio(num, den Amount) Amount {
	if den.d.IsZero() {
		return Zero
	}
	return New(a.d.Mul(num.d).Div(den.d))
}

func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

func (a Amount) IsZero() bool { return a.d.IsZero() }

func (a Amount) IsPositive() bool { return a.d.IsPositive() }

func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// NearlyZero reports |a| <= Epsilon.
func (a Amount) NearlyZero() bool { return a.d.Abs().LessThanOrEqual(Epsilon) }

// NearlyEqual reports |a-b| <= Epsilon.
func (a Amount) NearlyEqual(b Amount) bool { return a.Sub(b).NearlyZero() }

// GreaterBeyondEpsilon reports a > b + Epsilon.
func (a Amount) GreaterBeyondEpsilon(b Amount) bool {
	return a.d.Sub(b.d).GreaterThan(Epsilon)
}

func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func Max(a, b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func Sum(values ...Amount) Amount {
	out := Zero
	for _, v := range values {
		out = out.Add(v)
	}
	return out
}

func (a Amount) String() string { return a.d.StringFixed(Scale) }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.d.StringFixed(Scale)), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	a.d = d.Round(Scale)
	return nil
}

// Scan implements sql.Scanner; pgx numeric values arrive as strings.
func (a *Amount) Scan(value any) error {
	if value == nil {
		a.d = decimal.Zero
		return nil
	}
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return err
	}
	a.d = d.Round(Scale)
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	return a.d.StringFixed(Scale), nil
}
