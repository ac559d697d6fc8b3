package vm

import (
	"fmt"
	"sort"
)

var nativeRegistry = map[string]*Native{}

// RegisterNative installs a native that every VM created afterwards
// defines as a global.
func RegisterNative(name string, arity int, fn NativeFunc) {
	if fn == nil {
		panic(fmt.Sprintf("native %s has nil handler", name))
	}
	if _, exists := nativeRegistry[name]; exists {
		panic(fmt.Sprintf("native %s already registered", name))
	}
	nativeRegistry[name] = &Native{Name: name, Arity: arity, Fn: fn}
}

// RegisteredNatives lists registered natives sorted by name.
func RegisteredNatives() []*Native {
	out := make([]*Native, 0, len(nativeRegistry))
	for _, n := range nativeRegistry {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefineNativeFunction binds a host function as a global of this VM only.
func (vm *VM) DefineNativeFunction(name string, arity int, fn NativeFunc) {
	if fn == nil {
		panic(fmt.Sprintf("native %s has nil handler", name))
	}
	vm.globals[name] = NativeVal(&Native{Name: name, Arity: arity, Fn: fn})
}

func (vm *VM) seedNatives() {
	for _, n := range nativeRegistry {
		vm.globals[n.Name] = NativeVal(n)
	}
}
