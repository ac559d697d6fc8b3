package compiler

import "github.com/rthome/SpeedCalc/internal/bytecode"

type Chunk = bytecode.Chunk
type Function = bytecode.Function
