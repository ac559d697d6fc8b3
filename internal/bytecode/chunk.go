package bytecode

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Chunk is a compiled bytecode sequence with its constant pool. Lines holds
// one source line per byte of Code.
type Chunk struct {
	Code   []byte
	Lines  []int
	Consts []interface{}
}

// Function is a compiled function: the script itself (empty name) or a
// declaration nested as a constant of its enclosing chunk.
type Function struct {
	Name  string
	Arity int
	Chunk *Chunk
}

// NewFunction creates a function with an empty chunk.
func NewFunction(name string, arity int) *Function {
	return &Function{
		Name:  name,
		Arity: arity,
		Chunk: NewChunk(),
	}
}

// NewChunk constructs an empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:  make([]byte, 0, 64),
		Lines: make([]int, 0, 64),
	}
}

// String renders the function the way scripts display it.
func (fn *Function) String() string {
	if fn == nil || fn.Name == "" {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s '%d>", fn.Name, fn.Arity)
}

// Write appends a byte tagged with its source line.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp appends an opcode with its operand bytes, all on the same line.
func (c *Chunk) WriteOp(line int, op byte, operands ...byte) {
	c.Write(op, line)
	for _, b := range operands {
		c.Write(b, line)
	}
}

// AddConst stores v in the constant pool and returns its index. A value
// equal to an existing constant reuses that slot.
func (c *Chunk) AddConst(v interface{}) int {
	for i, existing := range c.Consts {
		if constEqual(existing, v) {
			return i
		}
	}
	c.Consts = append(c.Consts, v)
	return len(c.Consts) - 1
}

// LineAt returns the source line for the byte at offset.
func (c *Chunk) LineAt(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// ReadU16 decodes the big-endian operand at offset.
func (c *Chunk) ReadU16(offset int) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}

func constEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case *apd.Decimal:
		bv, ok := b.(*apd.Decimal)
		return ok && av.Cmp(bv) == 0
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case *Function:
		bv, ok := b.(*Function)
		return ok && av == bv
	default:
		return false
	}
}
