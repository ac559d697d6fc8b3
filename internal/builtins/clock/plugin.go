package clock

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/rthome/SpeedCalc/internal/runtime"
	"github.com/rthome/SpeedCalc/internal/vm"
)

func init() {
	runtime.Register(runtime.Spec{
		Name:  "clock",
		Arity: 0,
		Doc:   "clock() returns the wall-clock time in seconds since the Unix epoch.",
		Fn:    runClock,
	})
}

var now = time.Now

func runClock(*vm.VM, []vm.Value) (vm.Value, error) {
	secs := apd.New(now().UnixNano(), -9)
	secs.Reduce(secs)
	return vm.Number(secs), nil
}
