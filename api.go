package speedcalc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/apd/v3"

	_ "github.com/rthome/SpeedCalc/internal/builtins"
	"github.com/rthome/SpeedCalc/internal/bytecode"
	"github.com/rthome/SpeedCalc/internal/compiler"
	"github.com/rthome/SpeedCalc/internal/number"
	"github.com/rthome/SpeedCalc/internal/vm"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	decimalType = reflect.TypeOf((*apd.Decimal)(nil))
	valueType   = reflect.TypeOf(VmValue{})
)

// ErrBusy is returned when a VM is asked to run while another evaluation
// is in flight.
var ErrBusy = errors.New("VM is busy; concurrent evaluation not allowed")

// VmValue is a value produced or consumed by the VM.
type VmValue struct {
	v vm.Value
}

// ArgError represents a typed argument validation error for host functions.
type ArgError struct {
	Index int
	Want  string
	Got   string
}

func (e ArgError) Error() string {
	switch {
	case e.Want != "" && e.Got != "":
		return fmt.Sprintf("argument %d: want %s, got %s", e.Index, e.Want, e.Got)
	case e.Want != "":
		return fmt.Sprintf("argument %d: want %s", e.Index, e.Want)
	default:
		return "argument error"
	}
}

// Marshaler allows custom control over Go to VM conversion.
type Marshaler interface {
	MarshalSpeedCalc() (VmValue, error)
}

// ValueKind mirrors the runtime kinds for convenient inspection.
type ValueKind int

const (
	ValueBool ValueKind = iota
	ValueNumber
	ValueString
	ValueFunction
	ValueNative
)

func (k ValueKind) String() string {
	return vm.Kind(k).String()
}

// Result is the outcome of interpreting a script.
type Result = vm.Result

const (
	ResultSuccess      = vm.ResultSuccess
	ResultCompileError = vm.ResultCompileError
	ResultRuntimeError = vm.ResultRuntimeError
)

// Diagnostic is a single compile error.
type Diagnostic struct {
	Line    int
	Where   string
	Message string
}

func (d Diagnostic) String() string {
	return compiler.Diagnostic{Line: d.Line, Where: d.Where, Message: d.Message}.String()
}

// CompileError lists every diagnostic reported while compiling a source.
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// FrameTrace describes a single frame in a runtime error or trace.
type FrameTrace struct {
	Function string
	Line     int
	IP       int
}

// RuntimeError is a source-aware execution error surfaced from the VM.
type RuntimeError struct {
	Message     string
	Frame       FrameTrace
	Stack       []FrameTrace
	Instruction string
	Cause       error
}

func (e *RuntimeError) Error() string {
	if e.Frame.Function == "" {
		return e.Message
	}
	return fmt.Sprintf("line %d in %s: %s", e.Frame.Line, e.Frame.Function, e.Message)
}

// Unwrap exposes the underlying cause (if any) for errors.Is/As.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// TraceInfo captures execution steps for debug hooks.
type TraceInfo struct {
	Op       string
	Function string
	Line     int
	IP       int
	Depth    int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

func convertCompileError(err error) error {
	var cerr *compiler.Error
	if !errors.As(err, &cerr) {
		return err
	}
	diags := cerr.Diagnostics()
	out := &CompileError{Diagnostics: make([]Diagnostic, len(diags))}
	for i, d := range diags {
		out.Diagnostics[i] = Diagnostic{Line: d.Line, Where: d.Where, Message: d.Message}
	}
	return out
}

func convertRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	if rte, ok := err.(*vm.RuntimeError); ok {
		return &RuntimeError{
			Message:     rte.Message,
			Frame:       frameTraceFromVM(rte.Frame),
			Stack:       stackTraceFromVM(rte.Stack),
			Instruction: rte.Instruction,
			Cause:       rte.Cause,
		}
	}
	return err
}

func frameTraceFromVM(info vm.FrameInfo) FrameTrace {
	return FrameTrace{
		Function: info.Function,
		Line:     info.Line,
		IP:       info.IP,
	}
}

func stackTraceFromVM(stack []vm.FrameInfo) []FrameTrace {
	if len(stack) == 0 {
		return nil
	}
	out := make([]FrameTrace, len(stack))
	for i, fr := range stack {
		out[i] = frameTraceFromVM(fr)
	}
	return out
}

// HostArgs provides typed accessors for host function arguments.
type HostArgs struct {
	args []VmValue
}

// NewHostArgs wraps positional arguments for typed access.
func NewHostArgs(args []VmValue) HostArgs {
	return HostArgs{args: args}
}

// Len reports the number of arguments.
func (a HostArgs) Len() int {
	return len(a.args)
}

// Value returns the raw VmValue at index i.
func (a HostArgs) Value(i int) (VmValue, error) {
	if i < 0 || i >= len(a.args) {
		return VmValue{}, ArgError{Index: i, Want: "present"}
	}
	return a.args[i], nil
}

// Decimal returns the numeric argument at index i.
func (a HostArgs) Decimal(i int) (*apd.Decimal, error) {
	v, err := a.Value(i)
	if err != nil {
		return nil, err
	}
	if d, ok := v.Decimal(); ok {
		return d, nil
	}
	return nil, ArgError{Index: i, Want: "number", Got: v.Kind().String()}
}

// Float returns the numeric argument at index i as a float64.
func (a HostArgs) Float(i int) (float64, error) {
	d, err := a.Decimal(i)
	if err != nil {
		return 0, err
	}
	return number.Float64(d)
}

// Bool returns the boolean argument at index i.
func (a HostArgs) Bool(i int) (bool, error) {
	v, err := a.Value(i)
	if err != nil {
		return false, err
	}
	if b, ok := v.Bool(); ok {
		return b, nil
	}
	return false, ArgError{Index: i, Want: "bool", Got: v.Kind().String()}
}

// Text returns the string argument at index i.
func (a HostArgs) Text(i int) (string, error) {
	v, err := a.Value(i)
	if err != nil {
		return "", err
	}
	if s, ok := v.Text(); ok {
		return s, nil
	}
	return "", ArgError{Index: i, Want: "string", Got: v.Kind().String()}
}

// NewValue marshals a Go value into a VmValue.
func NewValue(val any) (VmValue, error) {
	v, err := marshalGoValue(val)
	if err != nil {
		return VmValue{}, err
	}
	return VmValue{v: v}, nil
}

// MustValue marshals and panics on error (convenience for tests/examples).
func MustValue(val any) VmValue {
	v, err := NewValue(val)
	if err != nil {
		panic(err)
	}
	return v
}

// Raw returns a Go representation of the value: bool, *apd.Decimal or
// string. Functions are not convertible and return an error.
func (v VmValue) Raw() (any, error) {
	switch v.v.Kind {
	case vm.KindBool:
		return v.v.B, nil
	case vm.KindNumber:
		return new(apd.Decimal).Set(v.v.Num), nil
	case vm.KindString:
		return v.v.Str, nil
	default:
		return nil, fmt.Errorf("cannot convert %s to a Go value", v.v.Kind)
	}
}

// MustRaw returns Raw() or panics on error (convenience).
func (v VmValue) MustRaw() any {
	val, err := v.Raw()
	if err != nil {
		panic(err)
	}
	return val
}

// Kind reports the underlying value kind.
func (v VmValue) Kind() ValueKind {
	return ValueKind(v.v.Kind)
}

// String renders the value the way print displays it.
func (v VmValue) String() string {
	return v.v.String()
}

// Truthy reports whether the value counts as true in a condition.
func (v VmValue) Truthy() bool {
	return vm.Truthy(v.v)
}

// Bool returns the boolean value when the kind matches.
func (v VmValue) Bool() (bool, bool) {
	if v.v.Kind != vm.KindBool {
		return false, false
	}
	return v.v.B, true
}

// Decimal returns a copy of the numeric value when the kind matches.
func (v VmValue) Decimal() (*apd.Decimal, bool) {
	if v.v.Kind != vm.KindNumber {
		return nil, false
	}
	return new(apd.Decimal).Set(v.v.Num), true
}

// Float returns the numeric value as a float64 when the kind matches.
func (v VmValue) Float() (float64, bool) {
	if v.v.Kind != vm.KindNumber {
		return 0, false
	}
	f, err := number.Float64(v.v.Num)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Text returns the string value when the kind matches.
func (v VmValue) Text() (string, bool) {
	if v.v.Kind != vm.KindString {
		return "", false
	}
	return v.v.Str, true
}

// FunctionHandler is the Go-side implementation of a native function.
type FunctionHandler func(args HostArgs) (VmValue, error)

// VmFunction describes a host-provided function with a fixed arity.
type VmFunction struct {
	Arity   int
	Handler FunctionHandler
}

// NewFunction creates a host function taking arity arguments.
func NewFunction(arity int, handler FunctionHandler) *VmFunction {
	return &VmFunction{
		Arity:   arity,
		Handler: handler,
	}
}

func (fn *VmFunction) native(name string) vm.NativeFunc {
	return func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		if fn == nil || fn.Handler == nil {
			return vm.Value{}, fmt.Errorf("native %s has no handler", name)
		}
		wrapped := make([]VmValue, len(args))
		for i, a := range args {
			wrapped[i] = VmValue{v: a}
		}
		res, err := fn.Handler(NewHostArgs(wrapped))
		if err != nil {
			return vm.Value{}, err
		}
		return res.v, nil
	}
}

// FunctionFromGo wraps a Go function using reflection. Supported
// signatures:
//
//	func(...) T
//	func(...) (T, error)
//
// Parameters and T may be bool, string, any integer or float type,
// *apd.Decimal or VmValue.
func FunctionFromGo(fn any) (*VmFunction, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}
	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, fmt.Errorf("%T is not a function", fn)
	}
	if rt.IsVariadic() {
		return nil, errors.New("variadic functions are not supported")
	}
	switch rt.NumOut() {
	case 1:
		if rt.Out(0) == errorType {
			return nil, errors.New("function must return a value")
		}
	case 2:
		if rt.Out(1) != errorType {
			return nil, errors.New("second return value must be error")
		}
	default:
		return nil, fmt.Errorf("function must return 1 or 2 values, got %d", rt.NumOut())
	}

	handler := func(args HostArgs) (VmValue, error) {
		inputs := make([]reflect.Value, rt.NumIn())
		for i := range inputs {
			arg, err := args.Value(i)
			if err != nil {
				return VmValue{}, err
			}
			val, err := convertVmValue(arg.v, rt.In(i))
			if err != nil {
				return VmValue{}, fmt.Errorf("argument %d: %w", i, err)
			}
			inputs[i] = val
		}
		results := rv.Call(inputs)
		if len(results) == 2 && !results[1].IsNil() {
			return VmValue{}, results[1].Interface().(error)
		}
		return NewValue(results[0].Interface())
	}
	return NewFunction(rt.NumIn(), handler), nil
}

// Options configures a VM.
type Options struct {
	MaxFrames int
	Stdout    io.Writer
	Stderr    io.Writer
}

// VM evaluates SpeedCalc sources. Globals persist across evaluations.
type VM struct {
	core *vm.VM
	mu   sync.Mutex
	busy bool
}

// NewVM constructs a VM writing to os.Stdout and os.Stderr.
func NewVM() *VM {
	return NewVMWithOptions(Options{})
}

// NewVMWithOptions constructs a VM with the given sinks and call depth.
func NewVMWithOptions(opts Options) *VM {
	return &VM{
		core: vm.NewWithOptions(vm.Options{
			MaxFrames: opts.MaxFrames,
			Stdout:    opts.Stdout,
			Stderr:    opts.Stderr,
		}),
	}
}

func (vmc *VM) acquire() error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	vmc.mu.Lock()
	defer vmc.mu.Unlock()
	if vmc.busy {
		return ErrBusy
	}
	vmc.busy = true
	return nil
}

func (vmc *VM) release() {
	vmc.mu.Lock()
	vmc.busy = false
	vmc.mu.Unlock()
}

// Duplicate clones the configuration and globals into a new instance with
// no execution state.
func (vmc *VM) Duplicate() (*VM, error) {
	if err := vmc.acquire(); err != nil {
		return nil, err
	}
	defer vmc.release()
	return &VM{core: vmc.core.Duplicate()}, nil
}

// SetStdout redirects print output.
func (vmc *VM) SetStdout(w io.Writer) {
	vmc.core.SetStdout(w)
}

// SetStderr redirects compile diagnostics and runtime fault reports.
func (vmc *VM) SetStderr(w io.Writer) {
	vmc.core.SetStderr(w)
}

// SetGlobalFunction binds a host function to a global name.
func (vmc *VM) SetGlobalFunction(name string, fn *VmFunction) error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	if fn == nil {
		return errors.New("nil function")
	}
	vmc.core.DefineNativeFunction(name, fn.Arity, fn.native(name))
	return nil
}

// DefineNativeFunction binds a Go function, converted with FunctionFromGo,
// to a global name.
func (vmc *VM) DefineNativeFunction(name string, fn any) error {
	host, err := FunctionFromGo(fn)
	if err != nil {
		return fmt.Errorf("define %s: %w", name, err)
	}
	return vmc.SetGlobalFunction(name, host)
}

// HasFunction reports whether a global function or native exists with the
// given name.
func (vmc *VM) HasFunction(name string) bool {
	if vmc == nil || vmc.core == nil {
		return false
	}
	v, ok := vmc.core.Global(name)
	return ok && (v.Kind == vm.KindFunction || v.Kind == vm.KindNative)
}

// Global returns the value of a global variable.
func (vmc *VM) Global(name string) (VmValue, bool) {
	v, ok := vmc.core.Global(name)
	return VmValue{v: v}, ok
}

// InstructionCounter reports the instructions executed by the most recent
// evaluation.
func (vmc *VM) InstructionCounter() int64 {
	return vmc.core.InstructionCounter()
}

// SetTraceHook attaches a debug hook that observes instruction dispatch.
func (vmc *VM) SetTraceHook(h TraceHook) {
	if vmc == nil || vmc.core == nil {
		return
	}
	if h == nil {
		vmc.core.SetTraceHook(nil)
		return
	}
	vmc.core.SetTraceHook(func(info vm.TraceInfo) {
		h(TraceInfo{
			Op:       bytecode.OpName(info.Op),
			Function: info.Function,
			Line:     info.Line,
			IP:       info.IP,
			Depth:    info.Depth,
		})
	})
}

// Disassemble writes the bytecode of every global function to w.
func (vmc *VM) Disassemble(w io.Writer) error {
	if err := vmc.acquire(); err != nil {
		return err
	}
	defer vmc.release()
	return vmc.core.Disassemble(w)
}

// Interpret compiles and runs a script. Diagnostics and fault reports are
// also written to the error sink.
func (vmc *VM) Interpret(source string) (Result, error) {
	if err := vmc.acquire(); err != nil {
		return ResultRuntimeError, err
	}
	defer vmc.release()
	return vmc.interpret(source)
}

// LoadFile interprets the script at path.
func (vmc *VM) LoadFile(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ResultRuntimeError, err
	}
	return vmc.Interpret(string(data))
}

func (vmc *VM) interpret(source string) (Result, error) {
	fn, err := compiler.Compile(source)
	if err != nil {
		vmc.core.ReportCompileError(err)
		return ResultCompileError, convertCompileError(err)
	}
	res, err := vmc.core.Interpret(fn)
	if err != nil {
		return res, convertRuntimeError(err)
	}
	vmc.core.Pop()
	return res, nil
}

// Evaluate runs source and returns its value. A lone expression yields its
// value; statements yield false.
func (vmc *VM) Evaluate(ctx context.Context, source string) (VmValue, error) {
	return vmc.EvaluateAsync(ctx, source).Await(ctx)
}

// VmCallFuture represents an in-flight evaluation.
type VmCallFuture struct {
	ch <-chan VmCallResult
}

// VmCallResult is the outcome of an evaluation.
type VmCallResult struct {
	Value VmValue
	Err   error
}

// Await waits for completion or context cancellation.
func (f VmCallFuture) Await(ctx context.Context) (VmValue, error) {
	select {
	case <-ctx.Done():
		return VmValue{}, ctx.Err()
	case res := <-f.ch:
		return res.Value, res.Err
	}
}

func failedFuture(err error) VmCallFuture {
	ch := make(chan VmCallResult, 1)
	ch <- VmCallResult{Err: err}
	close(ch)
	return VmCallFuture{ch: ch}
}

// EvaluateAsync compiles and runs source on a separate goroutine. Only one
// evaluation may be in flight per VM; others fail with ErrBusy.
func (vmc *VM) EvaluateAsync(ctx context.Context, source string) VmCallFuture {
	if err := vmc.acquire(); err != nil {
		return failedFuture(err)
	}

	ch := make(chan VmCallResult, 1)
	go func() {
		defer close(ch)
		var res VmCallResult
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Value, res.Err = vmc.evaluate(source)
		}
		vmc.release()
		ch <- res
	}()
	return VmCallFuture{ch: ch}
}

func (vmc *VM) evaluate(source string) (VmValue, error) {
	fn, err := compiler.CompileExpression(source)
	if err != nil {
		fn, err = compiler.Compile(source)
		if err != nil {
			return VmValue{}, convertCompileError(err)
		}
	}
	if _, err := vmc.core.Interpret(fn); err != nil {
		return VmValue{}, convertRuntimeError(err)
	}
	v, err := vmc.core.Pop()
	if err != nil {
		return VmValue{}, err
	}
	return VmValue{v: v}, nil
}

// CallAsync invokes a global function by name on a separate goroutine.
func (vmc *VM) CallAsync(ctx context.Context, name string, args []VmValue) VmCallFuture {
	if err := vmc.acquire(); err != nil {
		return failedFuture(err)
	}

	argVals := make([]vm.Value, len(args))
	for i, a := range args {
		argVals[i] = a.v
	}
	ch := make(chan VmCallResult, 1)
	go func() {
		defer close(ch)
		var res VmCallResult
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else if v, err := vmc.core.Call(name, argVals); err != nil {
			res.Err = convertRuntimeError(err)
		} else {
			res.Value = VmValue{v: v}
		}
		vmc.release()
		ch <- res
	}()
	return VmCallFuture{ch: ch}
}

// Compile checks source without running it.
func Compile(source string) error {
	_, err := compiler.Compile(source)
	if err != nil {
		return convertCompileError(err)
	}
	return nil
}

func convertVmValue(src vm.Value, target reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(target)
	if err := assignValue(src, ptr.Elem()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// marshalGoValue converts common Go types into vm.Value.
func marshalGoValue(val any) (vm.Value, error) {
	switch v := val.(type) {
	case nil:
		return vm.Value{}, errors.New("cannot marshal nil")
	case VmValue:
		return v.v, nil
	case Marshaler:
		mv, err := v.MarshalSpeedCalc()
		if err != nil {
			return vm.Value{}, err
		}
		return mv.v, nil
	case bool:
		return vm.Bool(v), nil
	case string:
		return vm.String(v), nil
	case *apd.Decimal:
		if v == nil {
			return vm.Value{}, errors.New("cannot marshal nil decimal")
		}
		return vm.Number(new(apd.Decimal).Set(v)), nil
	case apd.Decimal:
		return vm.Number(new(apd.Decimal).Set(&v)), nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		d, err := number.Parse(strconv.FormatUint(rv.Uint(), 10))
		if err != nil {
			return vm.Value{}, err
		}
		return vm.Number(d), nil
	case reflect.Float32, reflect.Float64:
		d, err := number.FromFloat(rv.Float())
		if err != nil {
			return vm.Value{}, err
		}
		return vm.Number(d), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return vm.Value{}, errors.New("cannot marshal nil pointer")
		}
		return marshalGoValue(rv.Elem().Interface())
	default:
		return vm.Value{}, fmt.Errorf("unsupported type %T", val)
	}
}

// Unmarshal assigns a VmValue into a Go target using reflection.
func Unmarshal(val VmValue, target any) error {
	if target == nil {
		return errors.New("nil target")
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("target must be a non-nil pointer")
	}
	return assignValue(val.v, rv.Elem())
}

func assignValue(src vm.Value, dst reflect.Value) error {
	switch dst.Type() {
	case valueType:
		dst.Set(reflect.ValueOf(VmValue{v: src}))
		return nil
	case decimalType:
		if src.Kind != vm.KindNumber {
			return mismatch(src, "number")
		}
		dst.Set(reflect.ValueOf(new(apd.Decimal).Set(src.Num)))
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		if src.Kind != vm.KindBool {
			return mismatch(src, "bool")
		}
		dst.SetBool(src.B)
	case reflect.String:
		if src.Kind != vm.KindString {
			return mismatch(src, "string")
		}
		dst.SetString(src.Str)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if src.Kind != vm.KindNumber {
			return mismatch(src, "number")
		}
		n, err := src.Num.Int64()
		if err != nil {
			return fmt.Errorf("number %s is not an integer", number.Format(src.Num))
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("number %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if src.Kind != vm.KindNumber {
			return mismatch(src, "number")
		}
		n, err := src.Num.Int64()
		if err != nil || n < 0 {
			return fmt.Errorf("number %s is not an unsigned integer", number.Format(src.Num))
		}
		if dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("number %d overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		if src.Kind != vm.KindNumber {
			return mismatch(src, "number")
		}
		f, err := number.Float64(src.Num)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	case reflect.Interface:
		raw, err := VmValue{v: src}.Raw()
		if err != nil {
			return err
		}
		if !reflect.TypeOf(raw).AssignableTo(dst.Type()) {
			return fmt.Errorf("cannot assign %T to %s", raw, dst.Type())
		}
		dst.Set(reflect.ValueOf(raw))
	default:
		return fmt.Errorf("unsupported target type %s", dst.Type())
	}
	return nil
}

func mismatch(src vm.Value, want string) error {
	return fmt.Errorf("want %s, got %s", want, src.Kind)
}
