package vm

import (
	"fmt"
	"io"
	"strings"

	"github.com/rthome/SpeedCalc/internal/bytecode"
)

// TraceInfo describes a single instruction dispatch.
type TraceInfo struct {
	Op       byte
	Function string
	Line     int
	IP       int
	Depth    int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

// FrameInfo captures a call frame at the time of an error.
type FrameInfo struct {
	Function string
	Line     int
	IP       int
}

// RuntimeError carries the faulting instruction and the call stack.
type RuntimeError struct {
	Message     string
	Frame       FrameInfo
	Stack       []FrameInfo
	Instruction string
	Cause       error
}

func (e *RuntimeError) Error() string {
	if e.Frame.Function == "" {
		return e.Message
	}
	return fmt.Sprintf("[line %d] in %s: %s", e.Frame.Line, e.Frame.Function, e.Message)
}

// Unwrap exposes the original error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// Report renders the fault the way the VM writes it to its error sink.
func (e *RuntimeError) Report() string {
	var sb strings.Builder
	if e.Frame.Function != "" {
		fmt.Fprintf(&sb, "[line %d] Error in %s at %s\n", e.Frame.Line, e.Frame.Function, e.Instruction)
	}
	sb.WriteString(e.Message)
	sb.WriteString("\n")
	for _, fr := range e.Stack {
		fmt.Fprintf(&sb, "[line %d] in %s\n", fr.Line, fr.Function)
	}
	return sb.String()
}

// stackFault aborts dispatch from deep inside stack helpers. It is
// recovered by run and turned into a RuntimeError.
type stackFault string

func (vm *VM) errorf(format string, args ...interface{}) error {
	return vm.newRuntimeError(fmt.Sprintf(format, args...), nil)
}

func (vm *VM) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if rerr, ok := err.(*RuntimeError); ok {
		return rerr
	}
	return vm.newRuntimeError(err.Error(), err)
}

func (vm *VM) newRuntimeError(msg string, cause error) *RuntimeError {
	rerr := &RuntimeError{
		Message: msg,
		Stack:   vm.stackTrace(),
		Cause:   cause,
	}
	if len(vm.frames) > 0 {
		fr := vm.currentFrame()
		rerr.Frame = vm.frameInfo(fr)
		if in, err := bytecode.DecodeInstruction(fr.fn.Chunk, fr.lastOp); err == nil {
			rerr.Instruction = in.String()
		} else {
			rerr.Instruction = "<unknown>"
		}
	}
	return rerr
}

func (vm *VM) trace(fr *frame, op byte) {
	if vm.traceHook == nil {
		return
	}
	vm.traceHook(TraceInfo{
		Op:       op,
		Function: fr.fn.String(),
		Line:     fr.fn.Chunk.LineAt(fr.lastOp),
		IP:       fr.lastOp,
		Depth:    len(vm.frames),
	})
}

// stackTrace lists frames innermost first.
func (vm *VM) stackTrace() []FrameInfo {
	if len(vm.frames) == 0 {
		return nil
	}
	trace := make([]FrameInfo, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		trace = append(trace, vm.frameInfo(&vm.frames[i]))
	}
	return trace
}

func (vm *VM) frameInfo(fr *frame) FrameInfo {
	if fr == nil || fr.fn == nil {
		return FrameInfo{}
	}
	return FrameInfo{
		Function: fr.fn.String(),
		Line:     fr.fn.Chunk.LineAt(fr.lastOp),
		IP:       fr.lastOp,
	}
}

func (vm *VM) report(w io.Writer, err error) {
	if w == nil {
		return
	}
	if rerr, ok := err.(*RuntimeError); ok {
		io.WriteString(w, rerr.Report())
		return
	}
	fmt.Fprintln(w, err)
}
