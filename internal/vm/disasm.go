package vm

import (
	"fmt"
	"io"

	"github.com/rthome/SpeedCalc/internal/bytecode"
)

// Disassemble emits assembly-style bytecode output for every global
// function, natives listed by name and arity.
func (vm *VM) Disassemble(w io.Writer) error {
	if vm == nil {
		return fmt.Errorf("nil VM")
	}
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	dis := bytecode.NewDisassembler(w)
	for _, name := range vm.GlobalNames() {
		val := vm.globals[name]
		switch val.Kind {
		case KindNative:
			dis.PrintNative(name, val.Native.Arity)
		case KindFunction:
			if val.Func == nil {
				continue
			}
			if err := dis.DisassembleFunction(val.Func); err != nil {
				return fmt.Errorf("disassemble %s: %w", name, err)
			}
		}
	}
	return nil
}
