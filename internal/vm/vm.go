package vm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/apd/v3"
	"github.com/tliron/commonlog"

	"github.com/rthome/SpeedCalc/internal/bytecode"
	"github.com/rthome/SpeedCalc/internal/compiler"
	"github.com/rthome/SpeedCalc/internal/number"
)

var log = commonlog.GetLogger("speedcalc.vm")

// Result is the outcome of an interpretation.
type Result int

const (
	ResultSuccess Result = iota
	ResultCompileError
	ResultRuntimeError
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultCompileError:
		return "compile error"
	case ResultRuntimeError:
		return "runtime error"
	default:
		return "unknown"
	}
}

const (
	DefaultMaxFrames = 64
	slotsPerFrame    = 256
)

type frame struct {
	fn     *bytecode.Function
	ip     int
	base   int
	lastOp int
}

// Options configures a VM. Zero values select the defaults.
type Options struct {
	MaxFrames int
	Stdout    io.Writer
	Stderr    io.Writer
	Trace     TraceHook
}

// VM is a stack-based bytecode interpreter. It is not safe for concurrent
// use; the stack and globals persist across Interpret calls.
type VM struct {
	stack     []Value
	frames    []frame
	globals   map[string]Value
	maxFrames int
	maxStack  int
	stdout    io.Writer
	stderr    io.Writer
	traceHook TraceHook
	instCount int64
}

// New constructs a VM writing to os.Stdout and os.Stderr.
func New() *VM {
	return NewWithOptions(Options{})
}

// NewWithOptions constructs a VM with every registered native defined.
func NewWithOptions(opts Options) *VM {
	vm := &VM{
		globals:   make(map[string]Value),
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
		traceHook: opts.Trace,
	}
	if vm.stdout == nil {
		vm.stdout = os.Stdout
	}
	if vm.stderr == nil {
		vm.stderr = os.Stderr
	}
	vm.SetMaxFrames(opts.MaxFrames)
	vm.seedNatives()
	return vm
}

// SetMaxFrames bounds the call depth; the value stack holds 256 slots per
// frame. Non-positive values select DefaultMaxFrames.
func (vm *VM) SetMaxFrames(n int) {
	if n <= 0 {
		n = DefaultMaxFrames
	}
	vm.maxFrames = n
	vm.maxStack = n * slotsPerFrame
	vm.frames = make([]frame, 0, n)
	if vm.stack == nil {
		vm.stack = make([]Value, 0, slotsPerFrame)
	}
}

// SetStdout redirects print output.
func (vm *VM) SetStdout(w io.Writer) {
	vm.stdout = w
}

// SetStderr redirects compile diagnostics and fault reports.
func (vm *VM) SetStderr(w io.Writer) {
	vm.stderr = w
}

// Sinks returns the current output and error writers.
func (vm *VM) Sinks() (stdout, stderr io.Writer) {
	return vm.stdout, vm.stderr
}

// SetTraceHook registers a callback for instruction-level tracing.
func (vm *VM) SetTraceHook(h TraceHook) {
	vm.traceHook = h
}

// InstructionCounter reports the instructions executed by the most recent
// Interpret.
func (vm *VM) InstructionCounter() int64 {
	return vm.instCount
}

// InterpretSource compiles and runs source. Compile diagnostics and runtime
// faults are written to the error sink.
func (vm *VM) InterpretSource(source string) Result {
	fn, err := compiler.Compile(source)
	if err != nil {
		vm.ReportCompileError(err)
		return ResultCompileError
	}
	res, _ := vm.Interpret(fn)
	return res
}

// ReportCompileError writes each diagnostic of a compile error to the error
// sink, one per line.
func (vm *VM) ReportCompileError(err error) {
	var cerr *compiler.Error
	if !errors.As(err, &cerr) {
		fmt.Fprintln(vm.stderr, err)
		return
	}
	for _, d := range cerr.Diagnostics() {
		fmt.Fprintln(vm.stderr, d)
	}
}

// Interpret runs a compiled script. On success the script's result is left
// on the stack. On a fault the stack is restored to its height before the
// call and the report is written to the error sink.
func (vm *VM) Interpret(fn *bytecode.Function) (Result, error) {
	if fn == nil || fn.Chunk == nil {
		return ResultRuntimeError, errors.New("nil function")
	}
	if vm.running() {
		return ResultRuntimeError, vm.errorf("VM is already running")
	}
	height := len(vm.stack)
	vm.frames = vm.frames[:0]
	vm.instCount = 0
	log.Debugf("interpret %s (stack=%d)", fn, height)

	if err := vm.invoke(FunctionVal(fn), nil); err != nil {
		log.Debugf("runtime fault after %d instructions: %s", vm.instCount, err)
		vm.report(vm.stderr, err)
		vm.frames = vm.frames[:0]
		if len(vm.stack) > height {
			vm.stack = vm.stack[:height]
		}
		return ResultRuntimeError, err
	}
	log.Debugf("interpret %s done: %d instructions", fn, vm.instCount)
	return ResultSuccess, nil
}

func (vm *VM) run() error {
	fr := vm.currentFrame()
	code := fr.fn.Chunk.Code
	for {
		fr.lastOp = fr.ip
		op := code[fr.ip]
		fr.ip++
		vm.instCount++
		if vm.traceHook != nil {
			vm.trace(fr, op)
		}
		switch op {
		case bytecode.OP_TRUE:
			vm.push(Bool(true))
		case bytecode.OP_FALSE:
			vm.push(Bool(false))
		case bytecode.OP_CONSTANT:
			idx := vm.readU8(fr)
			vm.push(constToValue(fr.fn.Chunk.Consts[idx]))
		case bytecode.OP_POP:
			vm.pop()
		case bytecode.OP_POPN:
			vm.popN(int(vm.readU8(fr)))
		case bytecode.OP_LOAD_GLOBAL:
			name := vm.readName(fr)
			v, ok := vm.globals[name]
			if !ok {
				return vm.errorf("Undefined variable '%s'", name)
			}
			vm.push(v)
		case bytecode.OP_ASSIGN_GLOBAL:
			name := vm.readName(fr)
			if _, ok := vm.globals[name]; !ok {
				return vm.errorf("Undefined variable '%s'", name)
			}
			vm.globals[name] = vm.peek(0)
		case bytecode.OP_DEFINE_GLOBAL:
			name := vm.readName(fr)
			vm.globals[name] = vm.pop()
		case bytecode.OP_LOAD_LOCAL:
			slot := int(vm.readU8(fr))
			vm.push(vm.stack[fr.base+slot])
		case bytecode.OP_ASSIGN_LOCAL:
			slot := int(vm.readU8(fr))
			vm.stack[fr.base+slot] = vm.peek(0)
		case bytecode.OP_EQUAL:
			b := vm.pop()
			a := vm.pop()
			vm.push(Bool(Equal(a, b)))
		case bytecode.OP_GREATER, bytecode.OP_LESS:
			b := vm.peek(0)
			a := vm.peek(1)
			if a.Kind != KindNumber || b.Kind != KindNumber {
				return vm.errorf("Operands must be numbers")
			}
			vm.popN(2)
			cmp := number.Cmp(a.Num, b.Num)
			if op == bytecode.OP_GREATER {
				vm.push(Bool(cmp > 0))
			} else {
				vm.push(Bool(cmp < 0))
			}
		case bytecode.OP_ADD, bytecode.OP_SUBTRACT, bytecode.OP_MULTIPLY,
			bytecode.OP_DIVIDE, bytecode.OP_EXP, bytecode.OP_MODULO:
			if err := vm.arithmetic(op); err != nil {
				return err
			}
		case bytecode.OP_NEGATE:
			v := vm.peek(0)
			if v.Kind != KindNumber {
				return vm.errorf("Operand must be a number")
			}
			vm.stack[len(vm.stack)-1] = Number(number.Neg(v.Num))
		case bytecode.OP_NOT:
			vm.push(Bool(Falsey(vm.pop())))
		case bytecode.OP_PRINT:
			fmt.Fprintln(vm.stdout, vm.pop().String())
		case bytecode.OP_JUMP:
			off := vm.readU16(fr)
			fr.ip += off
		case bytecode.OP_JUMP_IF_FALSE:
			off := vm.readU16(fr)
			if Falsey(vm.peek(0)) {
				fr.ip += off
			}
		case bytecode.OP_LOOP:
			off := vm.readU16(fr)
			fr.ip -= off
		case bytecode.OP_CALL:
			argc := int(vm.readU8(fr))
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}
			fr = vm.currentFrame()
			code = fr.fn.Chunk.Code
		case bytecode.OP_RETURN:
			result := vm.pop()
			base := fr.base
			vm.frames = vm.frames[:len(vm.frames)-1]
			vm.stack = vm.stack[:base]
			vm.push(result)
			if len(vm.frames) == 0 {
				return nil
			}
			fr = vm.currentFrame()
			code = fr.fn.Chunk.Code
		default:
			return vm.errorf("Unknown opcode %d", op)
		}
	}
}

func (vm *VM) arithmetic(op byte) error {
	b := vm.peek(0)
	a := vm.peek(1)
	if a.Kind != KindNumber || b.Kind != KindNumber {
		return vm.errorf("Operands must be numbers")
	}
	var (
		res *apd.Decimal
		err error
	)
	switch op {
	case bytecode.OP_ADD:
		res, err = number.Add(a.Num, b.Num)
	case bytecode.OP_SUBTRACT:
		res, err = number.Sub(a.Num, b.Num)
	case bytecode.OP_MULTIPLY:
		res, err = number.Mul(a.Num, b.Num)
	case bytecode.OP_DIVIDE:
		res, err = number.Quo(a.Num, b.Num)
	case bytecode.OP_EXP:
		res, err = number.Pow(a.Num, b.Num)
	case bytecode.OP_MODULO:
		res, err = number.Rem(a.Num, b.Num)
	}
	if err != nil {
		return vm.wrapError(err)
	}
	vm.popN(2)
	vm.push(Number(res))
	return nil
}

func (vm *VM) callValue(callee Value, argc int) error {
	switch callee.Kind {
	case KindFunction:
		return vm.callFunction(callee.Func, argc)
	case KindNative:
		n := callee.Native
		if argc != n.Arity {
			return vm.errorf("Expected %d arguments but got %d", n.Arity, argc)
		}
		top := len(vm.stack)
		result, err := n.Fn(vm, vm.stack[top-argc:top])
		if err != nil {
			return vm.wrapError(err)
		}
		vm.stack = vm.stack[:top-argc-1]
		vm.push(result)
		return nil
	default:
		return vm.errorf("Can only call functions")
	}
}

func (vm *VM) callFunction(fn *bytecode.Function, argc int) error {
	if argc != fn.Arity {
		return vm.errorf("Expected %d arguments but got %d", fn.Arity, argc)
	}
	if len(vm.frames) >= vm.maxFrames {
		return vm.errorf("Stack overflow")
	}
	vm.frames = append(vm.frames, frame{
		fn:   fn,
		base: len(vm.stack) - argc - 1,
	})
	return nil
}

func (vm *VM) currentFrame() *frame {
	return &vm.frames[len(vm.frames)-1]
}

func (vm *VM) push(v Value) {
	if len(vm.stack) >= vm.maxStack {
		panic(stackFault("Value stack overflow"))
	}
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() Value {
	if len(vm.stack) == 0 {
		panic(stackFault("Attempt to pop off of empty stack"))
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) popN(n int) {
	if n > len(vm.stack) {
		panic(stackFault("Attempt to pop off of empty stack"))
	}
	vm.stack = vm.stack[:len(vm.stack)-n]
}

func (vm *VM) peek(distance int) Value {
	if distance < 0 || distance >= len(vm.stack) {
		panic(stackFault("Attempt to peek beyond end of stack"))
	}
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) readU16(fr *frame) int {
	v := fr.fn.Chunk.ReadU16(fr.ip)
	fr.ip += 2
	return v
}

func (vm *VM) readU8(fr *frame) byte {
	b := fr.fn.Chunk.Code[fr.ip]
	fr.ip++
	return b
}

func (vm *VM) readName(fr *frame) string {
	idx := vm.readU8(fr)
	name, ok := fr.fn.Chunk.Consts[idx].(string)
	if !ok {
		panic(fmt.Sprintf("global name constant %d is %T", idx, fr.fn.Chunk.Consts[idx]))
	}
	return name
}
