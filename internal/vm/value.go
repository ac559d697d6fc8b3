package vm

import (
	"fmt"
	"reflect"

	"github.com/cockroachdb/apd/v3"

	"github.com/rthome/SpeedCalc/internal/bytecode"
	"github.com/rthome/SpeedCalc/internal/number"
)

type Kind int

const (
	KindBool Kind = iota
	KindNumber
	KindString
	KindFunction
	KindNative
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindNative:
		return "native"
	default:
		return "unknown"
	}
}

// NativeFunc is a host-provided callable. args aliases the VM stack and is
// only valid for the duration of the call.
type NativeFunc func(rt *VM, args []Value) (Value, error)

// Native is a named host function with a fixed arity.
type Native struct {
	Name  string
	Arity int
	Fn    NativeFunc
}

type Value struct {
	Kind   Kind
	B      bool
	Num    *apd.Decimal
	Str    string
	Func   *bytecode.Function
	Native *Native
}

func Bool(b bool) Value {
	return Value{Kind: KindBool, B: b}
}

func Number(d *apd.Decimal) Value {
	return Value{Kind: KindNumber, Num: d}
}

func Int(n int64) Value {
	return Number(number.FromInt(n))
}

func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

func FunctionVal(fn *bytecode.Function) Value {
	return Value{Kind: KindFunction, Func: fn}
}

func NativeVal(n *Native) Value {
	return Value{Kind: KindNative, Native: n}
}

// Truthy reports whether v counts as true in a condition. Only false and
// zero are falsey.
func Truthy(v Value) bool {
	switch v.Kind {
	case KindBool:
		return v.B
	case KindNumber:
		return v.Num != nil && !v.Num.IsZero()
	default:
		return true
	}
}

func Falsey(v Value) bool {
	return !Truthy(v)
}

func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBool:
		return a.B == b.B
	case KindNumber:
		return number.Equal(a.Num, b.Num)
	case KindString:
		return a.Str == b.Str
	case KindFunction:
		return a.Func == b.Func
	case KindNative:
		return nativeEqual(a.Native, b.Native)
	default:
		return false
	}
}

func nativeEqual(a, b *Native) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Name == b.Name && a.Arity == b.Arity &&
		reflect.ValueOf(a.Fn).Pointer() == reflect.ValueOf(b.Fn).Pointer()
}

// String renders v the way print displays it.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case KindNumber:
		return number.Format(v.Num)
	case KindString:
		return v.Str
	case KindFunction:
		return v.Func.String()
	case KindNative:
		return fmt.Sprintf("<native %s>", v.Native.Name)
	default:
		return "<unknown>"
	}
}

func constToValue(v interface{}) Value {
	switch val := v.(type) {
	case bool:
		return Bool(val)
	case *apd.Decimal:
		return Number(val)
	case string:
		return String(val)
	case *bytecode.Function:
		return FunctionVal(val)
	default:
		panic(fmt.Sprintf("unsupported constant %T", v))
	}
}
