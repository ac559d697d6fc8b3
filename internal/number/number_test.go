package number

import (
	"errors"
	"testing"

	"github.com/cockroachdb/apd/v3"
)

type decimal = apd.Decimal

func TestFormat(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1024", "1024"},
		{"2.0", "2"},
		{"0.50", "0.5"},
		{".5", "0.5"},
		{"100", "100"},
		{"1000000", "1000000"},
		{"0.000", "0"},
		{"123.4500", "123.45"},
	}
	for _, tt := range tests {
		if got := Format(MustParse(tt.in)); got != tt.want {
			t.Fatalf("Format(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestArithmeticIsExact(t *testing.T) {
	sum, err := Add(MustParse("0.1"), MustParse("0.2"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !Equal(sum, MustParse("0.3")) {
		t.Fatalf("expected 0.3, got %s", Format(sum))
	}

	sum, err = Add(MustParse("0.5"), MustParse("1.5"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := Format(sum); got != "2" {
		t.Fatalf("expected 2, got %s", got)
	}
}

func TestOperations(t *testing.T) {
	tests := []struct {
		name string
		fn   func(a, b string) (string, error)
		a, b string
		want string
	}{
		{"sub", wrap(Sub), "7000", "1", "6999"},
		{"mul", wrap(Mul), "2", "3.5", "7"},
		{"quo", wrap(Quo), "10", "2", "5"},
		{"quo-repeating", wrap(Quo), "1", "3", "0.3333333333333333333333333333"},
		{"pow", wrap(Pow), "5", "2", "25"},
		{"pow-fraction", wrap(Pow), "2", "-1", "0.5"},
		{"rem", wrap(Rem), "10", "3", "1"},
		{"rem-negative", wrap(Rem), "-7", "2", "-1"},
	}
	for _, tt := range tests {
		got, err := tt.fn(tt.a, tt.b)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s(%s, %s) = %s, want %s", tt.name, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDivisionByZero(t *testing.T) {
	if _, err := Quo(One(), Zero()); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := Rem(One(), Zero()); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestNegZeroFormatsAsZero(t *testing.T) {
	if got := Format(Neg(Zero())); got != "0" {
		t.Fatalf("expected 0, got %q", got)
	}
	if got := Format(Neg(FromInt(3))); got != "-3" {
		t.Fatalf("expected -3, got %q", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("1.2.3"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func wrap(op func(a, b *decimal) (*decimal, error)) func(a, b string) (string, error) {
	return func(a, b string) (string, error) {
		d, err := op(MustParse(a), MustParse(b))
		if err != nil {
			return "", err
		}
		return Format(d), nil
	}
}
