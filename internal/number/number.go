// Package number implements the exact decimal arithmetic used for script
// numbers. Values are *apd.Decimal and are never mutated once created.
package number

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Precision is the number of significant digits kept by every operation.
const Precision = 28

// ErrDivisionByZero is returned by Quo and Rem when the divisor is zero.
var ErrDivisionByZero = errors.New("Division by zero")

var ctx = &apd.Context{
	Precision:   Precision,
	MaxExponent: apd.MaxExponent,
	MinExponent: apd.MinExponent,
	Traps:       apd.DefaultTraps,
	Rounding:    apd.RoundHalfEven,
}

var (
	zero = apd.New(0, 0)
	one  = apd.New(1, 0)
)

// Zero returns the decimal 0.
func Zero() *apd.Decimal { return zero }

// One returns the decimal 1.
func One() *apd.Decimal { return one }

// Parse converts a numeric literal into a decimal.
func Parse(lexeme string) (*apd.Decimal, error) {
	if strings.HasPrefix(lexeme, ".") {
		lexeme = "0" + lexeme
	}
	d, _, err := apd.NewFromString(lexeme)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", lexeme, err)
	}
	return d, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(lexeme string) *apd.Decimal {
	d, err := Parse(lexeme)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt converts an integer.
func FromInt(n int64) *apd.Decimal {
	return apd.New(n, 0)
}

// FromFloat converts a float, keeping the shortest representation that
// round-trips.
func FromFloat(f float64) (*apd.Decimal, error) {
	d := new(apd.Decimal)
	if _, err := d.SetFloat64(f); err != nil {
		return nil, err
	}
	return d, nil
}

// Format renders d as plain decimal digits without exponent notation and
// with trailing fractional zeros removed.
func Format(d *apd.Decimal) string {
	if d == nil {
		return "0"
	}
	if d.IsZero() {
		return "0"
	}
	var reduced apd.Decimal
	reduced.Reduce(d)
	return reduced.Text('f')
}

// Cmp compares a and b, returning -1, 0 or +1.
func Cmp(a, b *apd.Decimal) int {
	return a.Cmp(b)
}

// Equal reports whether a and b denote the same number.
func Equal(a, b *apd.Decimal) bool {
	return a.Cmp(b) == 0
}

// IsZero reports whether d is exactly zero.
func IsZero(d *apd.Decimal) bool {
	return d.IsZero()
}

// Add returns a + b.
func Add(a, b *apd.Decimal) (*apd.Decimal, error) {
	return apply(ctx.Add, a, b)
}

// Sub returns a - b.
func Sub(a, b *apd.Decimal) (*apd.Decimal, error) {
	return apply(ctx.Sub, a, b)
}

// Mul returns a * b.
func Mul(a, b *apd.Decimal) (*apd.Decimal, error) {
	return apply(ctx.Mul, a, b)
}

// Quo returns a / b.
func Quo(a, b *apd.Decimal) (*apd.Decimal, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return apply(ctx.Quo, a, b)
}

// Rem returns the remainder of a / b, carrying the sign of a.
func Rem(a, b *apd.Decimal) (*apd.Decimal, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return apply(ctx.Rem, a, b)
}

// Pow returns a raised to b.
func Pow(a, b *apd.Decimal) (*apd.Decimal, error) {
	return apply(ctx.Pow, a, b)
}

// Neg returns -a.
func Neg(a *apd.Decimal) *apd.Decimal {
	d := new(apd.Decimal)
	d.Neg(a)
	return d
}

// Float64 converts d for hosts that need a binary float.
func Float64(d *apd.Decimal) (float64, error) {
	return d.Float64()
}

type binaryFunc func(d, x, y *apd.Decimal) (apd.Condition, error)

func apply(fn binaryFunc, a, b *apd.Decimal) (*apd.Decimal, error) {
	d := new(apd.Decimal)
	if _, err := fn(d, a, b); err != nil {
		return nil, err
	}
	return d, nil
}
