package runtime

import (
	"fmt"
	"sort"

	"github.com/rthome/SpeedCalc/internal/vm"
)

// Spec describes a native function made available to every VM.
type Spec struct {
	Name  string
	Arity int
	Doc   string
	Fn    vm.NativeFunc
}

var byName = map[string]Spec{}

// Register installs a native in the lookup table and the VM registry.
func Register(spec Spec) {
	if spec.Fn == nil {
		panic(fmt.Sprintf("builtin %s has nil handler", spec.Name))
	}
	if _, exists := byName[spec.Name]; exists {
		panic(fmt.Sprintf("builtin %s already registered", spec.Name))
	}
	byName[spec.Name] = spec
	vm.RegisterNative(spec.Name, spec.Arity, spec.Fn)
}

// LookupByName finds a builtin by its script-visible name.
func LookupByName(name string) (Spec, bool) {
	spec, ok := byName[name]
	return spec, ok
}

// All returns all registered builtins sorted by name.
func All() []Spec {
	out := make([]Spec, 0, len(byName))
	for _, spec := range byName {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
