package vm

import (
	"errors"
	"sort"
)

var (
	ErrStackEmpty     = errors.New("Attempt to pop off of empty stack")
	ErrPeekOutOfRange = errors.New("Attempt to peek beyond end of stack")
	ErrStackOverflow  = errors.New("Value stack overflow")
)

// Push adds a value onto the stack.
func (vm *VM) Push(v Value) error {
	if len(vm.stack) >= vm.maxStack {
		return ErrStackOverflow
	}
	vm.stack = append(vm.stack, v)
	return nil
}

// Pop removes and returns the top of the value stack.
func (vm *VM) Pop() (Value, error) {
	if len(vm.stack) == 0 {
		return Value{}, ErrStackEmpty
	}
	return vm.pop(), nil
}

// Peek inspects the value distance slots below the top without popping it.
func (vm *VM) Peek(distance int) (Value, error) {
	if distance < 0 || distance >= len(vm.stack) {
		return Value{}, ErrPeekOutOfRange
	}
	return vm.peek(distance), nil
}

// StackHeight reports the number of values on the stack.
func (vm *VM) StackHeight() int {
	return len(vm.stack)
}

// Global looks up a global variable.
func (vm *VM) Global(name string) (Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// DefineGlobal sets a global variable, creating it if necessary.
func (vm *VM) DefineGlobal(name string, v Value) {
	vm.globals[name] = v
}

// GlobalNames lists the defined globals, natives included, sorted by name.
func (vm *VM) GlobalNames() []string {
	names := make([]string, 0, len(vm.globals))
	for name := range vm.globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
