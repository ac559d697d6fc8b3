package vm

// Duplicate returns a new VM with copied globals and configuration.
// Execution state (stack/frames) is reset in the duplicate. Values are
// immutable, so functions and natives are shared rather than cloned.
func (vm *VM) Duplicate() *VM {
	if vm == nil {
		return nil
	}
	dup := NewWithOptions(Options{
		MaxFrames: vm.maxFrames,
		Stdout:    vm.stdout,
		Stderr:    vm.stderr,
		Trace:     vm.traceHook,
	})
	dup.globals = make(map[string]Value, len(vm.globals))
	for name, val := range vm.globals {
		dup.globals[name] = val
	}
	return dup
}
