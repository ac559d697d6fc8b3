package random

import (
	"math/rand"

	"github.com/rthome/SpeedCalc/internal/number"
	"github.com/rthome/SpeedCalc/internal/runtime"
	"github.com/rthome/SpeedCalc/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:  "random",
		Arity: 0,
		Doc:   "random() returns a uniformly distributed number in [0, 1).",
		Fn:    runRandom,
	})
}

func runRandom(*vm.VM, []vm.Value) (vm.Value, error) {
	d, err := number.FromFloat(rand.Float64())
	if err != nil {
		return vm.Value{}, err
	}
	return vm.Number(d), nil
}
