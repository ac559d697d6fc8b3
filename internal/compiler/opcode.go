package compiler

import "github.com/rthome/SpeedCalc/internal/bytecode"

// Re-export opcodes for convenience inside the compiler package.
const (
	OP_TRUE          = bytecode.OP_TRUE
	OP_FALSE         = bytecode.OP_FALSE
	OP_CONSTANT      = bytecode.OP_CONSTANT
	OP_POP           = bytecode.OP_POP
	OP_POPN          = bytecode.OP_POPN
	OP_LOAD_GLOBAL   = bytecode.OP_LOAD_GLOBAL
	OP_ASSIGN_GLOBAL = bytecode.OP_ASSIGN_GLOBAL
	OP_DEFINE_GLOBAL = bytecode.OP_DEFINE_GLOBAL
	OP_LOAD_LOCAL    = bytecode.OP_LOAD_LOCAL
	OP_ASSIGN_LOCAL  = bytecode.OP_ASSIGN_LOCAL
	OP_EQUAL         = bytecode.OP_EQUAL
	OP_GREATER       = bytecode.OP_GREATER
	OP_LESS          = bytecode.OP_LESS
	OP_ADD           = bytecode.OP_ADD
	OP_SUBTRACT      = bytecode.OP_SUBTRACT
	OP_MULTIPLY      = bytecode.OP_MULTIPLY
	OP_DIVIDE        = bytecode.OP_DIVIDE
	OP_EXP           = bytecode.OP_EXP
	OP_MODULO        = bytecode.OP_MODULO
	OP_NEGATE        = bytecode.OP_NEGATE
	OP_NOT           = bytecode.OP_NOT
	OP_PRINT         = bytecode.OP_PRINT
	OP_JUMP          = bytecode.OP_JUMP
	OP_JUMP_IF_FALSE = bytecode.OP_JUMP_IF_FALSE
	OP_LOOP          = bytecode.OP_LOOP
	OP_CALL          = bytecode.OP_CALL
	OP_RETURN        = bytecode.OP_RETURN
)
