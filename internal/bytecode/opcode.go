package bytecode

// OpCode enumerates bytecode operations. Operand widths:
// constant index, local slot, pop count and argument count take one byte;
// jump and loop offsets take two bytes, big-endian.
const (
	OP_TRUE byte = iota
	OP_FALSE
	OP_CONSTANT
	_ // reserved

	OP_POP
	OP_POPN
	_ // reserved
	_ // reserved

	OP_LOAD_GLOBAL
	OP_ASSIGN_GLOBAL
	OP_DEFINE_GLOBAL
	OP_LOAD_LOCAL
	OP_ASSIGN_LOCAL
	_ // reserved
	_ // reserved
	_ // reserved

	OP_EQUAL
	OP_GREATER
	OP_LESS
	_ // reserved

	OP_ADD
	OP_SUBTRACT
	OP_MULTIPLY
	OP_DIVIDE
	OP_EXP
	OP_MODULO
	OP_NEGATE
	OP_NOT

	OP_PRINT
	_ // reserved
	_ // reserved
	_ // reserved

	OP_JUMP
	OP_JUMP_IF_FALSE
	OP_LOOP
	_ // reserved

	OP_CALL
	OP_RETURN
)

// OperandKind describes how an instruction's operand bytes are interpreted.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandConst
	OperandSlot
	OperandCount
	OperandJump
	OperandLoop
)

type opInfo struct {
	name    string
	operand OperandKind
}

var opTable = map[byte]opInfo{
	OP_TRUE:          {"OP_TRUE", OperandNone},
	OP_FALSE:         {"OP_FALSE", OperandNone},
	OP_CONSTANT:      {"OP_CONSTANT", OperandConst},
	OP_POP:           {"OP_POP", OperandNone},
	OP_POPN:          {"OP_POPN", OperandCount},
	OP_LOAD_GLOBAL:   {"OP_LOAD_GLOBAL", OperandConst},
	OP_ASSIGN_GLOBAL: {"OP_ASSIGN_GLOBAL", OperandConst},
	OP_DEFINE_GLOBAL: {"OP_DEFINE_GLOBAL", OperandConst},
	OP_LOAD_LOCAL:    {"OP_LOAD_LOCAL", OperandSlot},
	OP_ASSIGN_LOCAL:  {"OP_ASSIGN_LOCAL", OperandSlot},
	OP_EQUAL:         {"OP_EQUAL", OperandNone},
	OP_GREATER:       {"OP_GREATER", OperandNone},
	OP_LESS:          {"OP_LESS", OperandNone},
	OP_ADD:           {"OP_ADD", OperandNone},
	OP_SUBTRACT:      {"OP_SUBTRACT", OperandNone},
	OP_MULTIPLY:      {"OP_MULTIPLY", OperandNone},
	OP_DIVIDE:        {"OP_DIVIDE", OperandNone},
	OP_EXP:           {"OP_EXP", OperandNone},
	OP_MODULO:        {"OP_MODULO", OperandNone},
	OP_NEGATE:        {"OP_NEGATE", OperandNone},
	OP_NOT:           {"OP_NOT", OperandNone},
	OP_PRINT:         {"OP_PRINT", OperandNone},
	OP_JUMP:          {"OP_JUMP", OperandJump},
	OP_JUMP_IF_FALSE: {"OP_JUMP_IF_FALSE", OperandJump},
	OP_LOOP:          {"OP_LOOP", OperandLoop},
	OP_CALL:          {"OP_CALL", OperandCount},
	OP_RETURN:        {"OP_RETURN", OperandNone},
}

// OpName returns the mnemonic for op, or a hex placeholder for unknown bytes.
func OpName(op byte) string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return unknownName(op)
}

// Operand reports the operand kind of op and whether op is known.
func Operand(op byte) (OperandKind, bool) {
	info, ok := opTable[op]
	return info.operand, ok
}

// OperandSize returns the number of operand bytes following op.
func OperandSize(kind OperandKind) int {
	switch kind {
	case OperandConst, OperandSlot, OperandCount:
		return 1
	case OperandJump, OperandLoop:
		return 2
	default:
		return 0
	}
}
