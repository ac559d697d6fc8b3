// Package builtins links the standard natives into the binary. Import it
// for side effects.
package builtins

import (
	_ "github.com/rthome/SpeedCalc/internal/builtins/clock"
	_ "github.com/rthome/SpeedCalc/internal/builtins/random"
)
