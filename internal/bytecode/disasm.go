package bytecode

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"github.com/rthome/SpeedCalc/internal/number"
)

// Instruction is one decoded instruction.
type Instruction struct {
	Offset  int
	Op      byte
	Name    string
	Operand int // raw operand value, -1 when the op takes none
	Target  int // absolute jump target, -1 for non-jumps
	Const   interface{}
	Size    int
}

// DecodeInstruction decodes the instruction starting at offset.
func DecodeInstruction(chunk *Chunk, offset int) (Instruction, error) {
	if chunk == nil {
		return Instruction{}, fmt.Errorf("nil chunk")
	}
	if offset < 0 || offset >= len(chunk.Code) {
		return Instruction{}, fmt.Errorf("offset %d out of range", offset)
	}
	op := chunk.Code[offset]
	in := Instruction{
		Offset:  offset,
		Op:      op,
		Name:    OpName(op),
		Operand: -1,
		Target:  -1,
		Size:    1,
	}
	kind, ok := Operand(op)
	if !ok {
		return in, nil
	}
	width := OperandSize(kind)
	if offset+width >= len(chunk.Code) {
		return in, fmt.Errorf("unexpected end of bytecode at %04d", offset)
	}
	in.Size += width
	switch width {
	case 1:
		in.Operand = int(chunk.Code[offset+1])
	case 2:
		in.Operand = chunk.ReadU16(offset + 1)
	}
	next := offset + in.Size
	switch kind {
	case OperandConst:
		if in.Operand >= len(chunk.Consts) {
			return in, fmt.Errorf("const index out of range: %d", in.Operand)
		}
		in.Const = chunk.Consts[in.Operand]
	case OperandJump:
		in.Target = next + in.Operand
	case OperandLoop:
		in.Target = next - in.Operand
	}
	return in, nil
}

// String renders the instruction without offset or line columns.
func (in Instruction) String() string {
	if in.Operand < 0 {
		return in.Name
	}
	s := fmt.Sprintf("%-16s %4d", in.Name, in.Operand)
	if in.Const != nil {
		s += " ; " + formatConst(in.Const)
	} else if in.Target >= 0 {
		s += fmt.Sprintf(" ; -> %04d", in.Target)
	}
	return s
}

// Disassembler formats bytecode as a readable assembly-style dump.
type Disassembler struct {
	w       io.Writer
	visited map[*Function]bool
	printed bool
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{
		w:       w,
		visited: make(map[*Function]bool),
	}
}

// DisassembleFunction emits a dump for fn followed by every function
// nested in its constant pool.
func (d *Disassembler) DisassembleFunction(fn *Function) error {
	if fn == nil || fn.Chunk == nil {
		return fmt.Errorf("nil function")
	}
	if d.visited[fn] {
		return nil
	}
	d.visited[fn] = true
	d.startSection()
	fmt.Fprintf(d.w, "== %s ==\n", fn)
	if err := d.DisassembleChunk(fn.Chunk); err != nil {
		return err
	}
	for _, c := range fn.Chunk.Consts {
		child, ok := c.(*Function)
		if !ok {
			continue
		}
		if err := d.DisassembleFunction(child); err != nil {
			return err
		}
	}
	return nil
}

// PrintNative emits a header for a host function.
func (d *Disassembler) PrintNative(name string, arity int) {
	d.startSection()
	fmt.Fprintf(d.w, "== <native %s> (arity=%d) ==\n", name, arity)
}

// DisassembleChunk writes one line per instruction in chunk.
func (d *Disassembler) DisassembleChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("nil chunk")
	}
	for ip := 0; ip < len(chunk.Code); {
		in, err := DecodeInstruction(chunk, ip)
		if err != nil {
			return err
		}
		lineStr := strconv.Itoa(chunk.LineAt(ip))
		if ip > 0 && chunk.LineAt(ip) == chunk.LineAt(ip-1) {
			lineStr = "|"
		}
		fmt.Fprintf(d.w, "%04d %4s %s\n", ip, lineStr, in)
		ip += in.Size
	}
	return nil
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func formatConst(v interface{}) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "true"
		}
		return "false"
	case *apd.Decimal:
		return number.Format(val)
	case string:
		return strconv.Quote(val)
	case *Function:
		return val.String()
	default:
		return "<unknown>"
	}
}

func unknownName(op byte) string {
	return fmt.Sprintf("OP_0x%02X", op)
}
