package vm

// Call invokes the global function or native name with args and returns its
// result. The stack is left as it was before the call, on success or fault.
// Call is not re-entrant: a native invoking it while the VM is running gets
// an error and the running script is left untouched.
func (vm *VM) Call(name string, args []Value) (Value, error) {
	if vm.running() {
		return Value{}, vm.errorf("VM is already running")
	}
	callee, ok := vm.globals[name]
	if !ok {
		return Value{}, vm.errorf("Undefined variable '%s'", name)
	}
	height := len(vm.stack)
	vm.frames = vm.frames[:0]
	vm.instCount = 0
	log.Debugf("call %s with %d args (stack=%d)", name, len(args), height)

	if err := vm.invoke(callee, args); err != nil {
		log.Debugf("runtime fault in %s: %s", name, err)
		vm.report(vm.stderr, err)
		vm.frames = vm.frames[:0]
		if len(vm.stack) > height {
			vm.stack = vm.stack[:height]
		}
		return Value{}, err
	}
	return vm.pop(), nil
}

func (vm *VM) invoke(callee Value, args []Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fault, ok := r.(stackFault)
			if !ok {
				panic(r)
			}
			err = vm.errorf("%s", string(fault))
		}
	}()
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	if err := vm.callValue(callee, len(args)); err != nil {
		return err
	}
	if callee.Kind != KindFunction {
		return nil
	}
	return vm.run()
}

func (vm *VM) running() bool {
	return len(vm.frames) > 0
}
