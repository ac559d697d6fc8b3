package bytecode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rthome/SpeedCalc/internal/number"
)

func sampleChunk() *Chunk {
	c := NewChunk()
	one := byte(c.AddConst(number.MustParse("1.50")))
	name := byte(c.AddConst("a"))
	c.WriteOp(1, OP_CONSTANT, one)
	c.WriteOp(1, OP_DEFINE_GLOBAL, name)
	c.WriteOp(2, OP_LOAD_GLOBAL, name)
	c.WriteOp(2, OP_JUMP_IF_FALSE, 0x00, 0x03)
	c.WriteOp(2, OP_POP)
	c.WriteOp(2, OP_LOOP, 0x00, 0x08)
	c.WriteOp(3, OP_POPN, 2)
	c.WriteOp(3, OP_RETURN)
	return c
}

func TestAddConstDeduplicates(t *testing.T) {
	c := NewChunk()
	a := c.AddConst(number.MustParse("2"))
	b := c.AddConst(number.MustParse("2.0"))
	s := c.AddConst("x")
	if a != b {
		t.Fatalf("expected equal decimals to share a slot, got %d and %d", a, b)
	}
	if s == a {
		t.Fatalf("expected distinct slot for string constant")
	}
	if c.AddConst(true) == c.AddConst(false) {
		t.Fatalf("expected distinct slots for true and false")
	}
	fn1, fn2 := NewFunction("f", 0), NewFunction("f", 0)
	if c.AddConst(fn1) == c.AddConst(fn2) {
		t.Fatalf("functions should be compared by identity")
	}
}

func TestDecodeInstruction(t *testing.T) {
	c := sampleChunk()
	tests := []struct {
		offset  int
		name    string
		operand int
		target  int
		size    int
	}{
		{0, "OP_CONSTANT", 0, -1, 2},
		{2, "OP_DEFINE_GLOBAL", 1, -1, 2},
		{6, "OP_JUMP_IF_FALSE", 3, 12, 3},
		{9, "OP_POP", -1, -1, 1},
		{10, "OP_LOOP", 8, 5, 3},
		{13, "OP_POPN", 2, -1, 2},
		{15, "OP_RETURN", -1, -1, 1},
	}
	for _, tt := range tests {
		in, err := DecodeInstruction(c, tt.offset)
		if err != nil {
			t.Fatalf("decode %d: %v", tt.offset, err)
		}
		if in.Name != tt.name || in.Operand != tt.operand || in.Target != tt.target || in.Size != tt.size {
			t.Fatalf("decode %d: got %+v", tt.offset, in)
		}
	}
	in, _ := DecodeInstruction(c, 0)
	if got := in.String(); !strings.Contains(got, "; 1.5") {
		t.Fatalf("expected constant annotation, got %q", got)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	src := sampleChunk()
	dst := NewChunk()
	dst.Consts = src.Consts
	for ip := 0; ip < len(src.Code); {
		in, err := DecodeInstruction(src, ip)
		if err != nil {
			t.Fatalf("decode %d: %v", ip, err)
		}
		var operands []byte
		switch in.Size {
		case 2:
			operands = []byte{byte(in.Operand)}
		case 3:
			operands = []byte{byte(in.Operand >> 8), byte(in.Operand)}
		}
		dst.WriteOp(src.LineAt(ip), in.Op, operands...)
		ip += in.Size
	}
	if !bytes.Equal(src.Code, dst.Code) {
		t.Fatalf("code mismatch:\n%v\n%v", src.Code, dst.Code)
	}
	for i := range src.Lines {
		if src.Lines[i] != dst.Lines[i] {
			t.Fatalf("line mismatch at %d", i)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	c := NewChunk()
	c.Write(OP_JUMP, 1)
	c.Write(0x00, 1)
	if _, err := DecodeInstruction(c, 0); err == nil {
		t.Fatalf("expected truncated operand error")
	}
	if _, err := DecodeInstruction(c, 5); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestDisassembleChunk(t *testing.T) {
	var buf bytes.Buffer
	if err := NewDisassembler(&buf).DisassembleChunk(sampleChunk()); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected 8 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "0000    1 OP_CONSTANT") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0002    | OP_DEFINE_GLOBAL") || !strings.Contains(lines[1], `"a"`) {
		t.Fatalf("unexpected second line %q", lines[1])
	}
	if !strings.Contains(lines[3], "-> 0012") {
		t.Fatalf("expected jump target, got %q", lines[3])
	}
	if !strings.Contains(lines[5], "-> 0005") {
		t.Fatalf("expected loop target, got %q", lines[5])
	}
}

func TestDisassembleNestedFunctions(t *testing.T) {
	script := NewFunction("", 0)
	inner := NewFunction("square", 1)
	inner.Chunk.WriteOp(1, OP_LOAD_LOCAL, 1)
	inner.Chunk.WriteOp(1, OP_RETURN)
	idx := byte(script.Chunk.AddConst(inner))
	script.Chunk.WriteOp(1, OP_CONSTANT, idx)
	script.Chunk.WriteOp(1, OP_RETURN)

	var buf bytes.Buffer
	dis := NewDisassembler(&buf)
	if err := dis.DisassembleFunction(script); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"== <script> ==", "== <fn square '1> ==", "OP_LOAD_LOCAL", "; <fn square '1>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	if got := OpName(0xEE); got != "OP_0xEE" {
		t.Fatalf("unexpected name %q", got)
	}
}
