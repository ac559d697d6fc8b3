package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func compileSource(t *testing.T, src string) *Function {
	t.Helper()
	fn, err := Compile(src)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return fn
}

func expectCode(t *testing.T, fn *Function, expected []byte) {
	t.Helper()
	code := fn.Chunk.Code
	if len(code) != len(expected) {
		t.Fatalf("expected code length %d, got %d: % x", len(expected), len(code), code)
	}
	for i, b := range expected {
		if code[i] != b {
			t.Fatalf("byte %d expected %02x got %02x (code % x)", i, b, code[i], code)
		}
	}
	if len(fn.Chunk.Lines) != len(code) {
		t.Fatalf("expected one line per byte, got %d lines for %d bytes", len(fn.Chunk.Lines), len(code))
	}
}

func expectCompileError(t *testing.T, src, fragment string) *Error {
	t.Helper()
	fn, err := Compile(src)
	if err == nil {
		t.Fatalf("expected compile error for %q", src)
	}
	if fn != nil {
		t.Fatalf("expected nil function on error")
	}
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !strings.Contains(err.Error(), fragment) {
		t.Fatalf("expected %q in %q", fragment, err.Error())
	}
	return cerr
}

func TestCompileEmptyIf(t *testing.T) {
	fn := compileSource(t, "if true: {}")
	expectCode(t, fn, []byte{
		OP_TRUE,
		OP_JUMP_IF_FALSE, 0x00, 0x04,
		OP_POP,
		OP_JUMP, 0x00, 0x01,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileIfPrint(t *testing.T) {
	fn := compileSource(t, "if true: print 1;")
	expectCode(t, fn, []byte{
		OP_TRUE,
		OP_JUMP_IF_FALSE, 0x00, 0x07,
		OP_POP,
		OP_CONSTANT, 0x00,
		OP_PRINT,
		OP_JUMP, 0x00, 0x01,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileIfElse(t *testing.T) {
	fn := compileSource(t, "if true: print 1; else: print 2;")
	expectCode(t, fn, []byte{
		OP_TRUE,
		OP_JUMP_IF_FALSE, 0x00, 0x07,
		OP_POP,
		OP_CONSTANT, 0x00,
		OP_PRINT,
		OP_JUMP, 0x00, 0x04,
		OP_POP,
		OP_CONSTANT, 0x01,
		OP_PRINT,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileComparisonDesugaring(t *testing.T) {
	tests := []struct {
		src string
		ops []byte
	}{
		{"1 == 2;", []byte{OP_EQUAL}},
		{"1 != 2;", []byte{OP_EQUAL, OP_NOT}},
		{"1 < 2;", []byte{OP_LESS}},
		{"1 <= 2;", []byte{OP_GREATER, OP_NOT}},
		{"1 > 2;", []byte{OP_GREATER}},
		{"1 >= 2;", []byte{OP_LESS, OP_NOT}},
	}
	for _, tt := range tests {
		fn := compileSource(t, tt.src)
		expected := []byte{OP_CONSTANT, 0x00, OP_CONSTANT, 0x01}
		expected = append(expected, tt.ops...)
		expected = append(expected, OP_POP, OP_FALSE, OP_RETURN)
		expectCode(t, fn, expected)
	}
}

func TestCompilePrecedence(t *testing.T) {
	fn := compileSource(t, "2 * (3 + 4 / 5**2);")
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x00,
		OP_CONSTANT, 0x01,
		OP_CONSTANT, 0x02,
		OP_CONSTANT, 0x03,
		OP_CONSTANT, 0x00,
		OP_EXP,
		OP_DIVIDE,
		OP_ADD,
		OP_MULTIPLY,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
	if len(fn.Chunk.Consts) != 4 {
		t.Fatalf("expected deduplicated constants, got %d", len(fn.Chunk.Consts))
	}
}

func TestCompileExponentIsRightAssociative(t *testing.T) {
	fn := compileSource(t, "2 ** 3 ** 2;")
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x00,
		OP_CONSTANT, 0x01,
		OP_CONSTANT, 0x00,
		OP_EXP,
		OP_EXP,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileGlobals(t *testing.T) {
	fn := compileSource(t, "var G = 100; G = 2; print G;")
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x01,
		OP_DEFINE_GLOBAL, 0x00,
		OP_CONSTANT, 0x02,
		OP_ASSIGN_GLOBAL, 0x00,
		OP_POP,
		OP_LOAD_GLOBAL, 0x00,
		OP_PRINT,
		OP_FALSE,
		OP_RETURN,
	})
	if fn.Chunk.Consts[0] != "G" {
		t.Fatalf("expected global name constant, got %v", fn.Chunk.Consts[0])
	}
}

func TestCompileVarWithoutInitializer(t *testing.T) {
	fn := compileSource(t, "var x;")
	expectCode(t, fn, []byte{
		OP_FALSE,
		OP_DEFINE_GLOBAL, 0x00,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileLocalsStartAfterReservedSlot(t *testing.T) {
	fn := compileSource(t, "{ var a = 1; print a; }")
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x00,
		OP_LOAD_LOCAL, 0x01,
		OP_PRINT,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileScopeDiscipline(t *testing.T) {
	fn := compileSource(t, "{ var a = 1; var b = 2; { var c = 3; } }")
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x00,
		OP_CONSTANT, 0x01,
		OP_CONSTANT, 0x02,
		OP_POP,
		OP_POPN, 0x02,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileShadowing(t *testing.T) {
	fn := compileSource(t, "{ var a = 1; { var a = true; print a; } }")
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x00,
		OP_TRUE,
		OP_LOAD_LOCAL, 0x02,
		OP_PRINT,
		OP_POP,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileCompoundAssignment(t *testing.T) {
	fn := compileSource(t, "{ var a = 1; a += 2; }")
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x00,
		OP_LOAD_LOCAL, 0x01,
		OP_CONSTANT, 0x01,
		OP_ADD,
		OP_ASSIGN_LOCAL, 0x01,
		OP_POP,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})

	ops := map[string]byte{"-=": OP_SUBTRACT, "*=": OP_MULTIPLY, "/=": OP_DIVIDE, "**=": OP_EXP}
	for op, code := range ops {
		fn := compileSource(t, fmt.Sprintf("var a = 1; a %s 2;", op))
		found := false
		for _, b := range fn.Chunk.Code {
			if b == code {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: expected opcode %02x in % x", op, code, fn.Chunk.Code)
		}
	}
}

func TestCompileLogicalOperators(t *testing.T) {
	fn := compileSource(t, "true and false;")
	expectCode(t, fn, []byte{
		OP_TRUE,
		OP_JUMP_IF_FALSE, 0x00, 0x02,
		OP_POP,
		OP_FALSE,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})

	fn = compileSource(t, "false or true;")
	expectCode(t, fn, []byte{
		OP_FALSE,
		OP_JUMP_IF_FALSE, 0x00, 0x03,
		OP_JUMP, 0x00, 0x02,
		OP_POP,
		OP_TRUE,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileWhile(t *testing.T) {
	fn := compileSource(t, "while false: print 1;")
	expectCode(t, fn, []byte{
		OP_FALSE,
		OP_JUMP_IF_FALSE, 0x00, 0x07,
		OP_POP,
		OP_CONSTANT, 0x00,
		OP_PRINT,
		OP_LOOP, 0x00, 0x0b,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileBreakJumpsPastExit(t *testing.T) {
	fn := compileSource(t, "while true: break;")
	expectCode(t, fn, []byte{
		OP_TRUE,
		OP_JUMP_IF_FALSE, 0x00, 0x07,
		OP_POP,
		OP_JUMP, 0x00, 0x04,
		OP_LOOP, 0x00, 0x0b,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileBreakDiscardsLoopLocals(t *testing.T) {
	fn := compileSource(t, "while true: { var a = 1; var b = 2; break; }")
	expectCode(t, fn, []byte{
		OP_TRUE,
		OP_JUMP_IF_FALSE, 0x00, 0x0f,
		OP_POP,
		OP_CONSTANT, 0x00,
		OP_CONSTANT, 0x01,
		OP_POPN, 0x02,
		OP_JUMP, 0x00, 0x06,
		OP_POPN, 0x02,
		OP_LOOP, 0x00, 0x13,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileFor(t *testing.T) {
	fn := compileSource(t, "for var i = 0; i < 2; i += 1: print i;")
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x00, // i = 0
		OP_LOAD_LOCAL, 0x01, // 2: condition
		OP_CONSTANT, 0x01,
		OP_LESS,
		OP_JUMP_IF_FALSE, 0x00, 0x15,
		OP_POP,
		OP_JUMP, 0x00, 0x0b, // 11: to body
		OP_LOAD_LOCAL, 0x01, // 14: increment
		OP_CONSTANT, 0x02,
		OP_ADD,
		OP_ASSIGN_LOCAL, 0x01,
		OP_POP,
		OP_LOOP, 0x00, 0x17,
		OP_LOAD_LOCAL, 0x01, // 25: body
		OP_PRINT,
		OP_LOOP, 0x00, 0x11,
		OP_POP,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
}

func TestCompileContinueTargetsIncrement(t *testing.T) {
	fn := compileSource(t, "for var i = 0; i < 2; i += 1: continue;")
	code := fn.Chunk.Code
	// body starts at 25 with the continue's loop instruction.
	if code[25] != OP_LOOP {
		t.Fatalf("expected loop at 25, got % x", code)
	}
	target := 28 - (int(code[26])<<8 | int(code[27]))
	if target != 14 {
		t.Fatalf("expected continue to target increment at 14, got %d", target)
	}
}

func TestCompileFunction(t *testing.T) {
	fn := compileSource(t, "fn f(a) = a + 1;")
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x01,
		OP_DEFINE_GLOBAL, 0x00,
		OP_FALSE,
		OP_RETURN,
	})
	inner, ok := fn.Chunk.Consts[1].(*Function)
	if !ok {
		t.Fatalf("expected function constant, got %T", fn.Chunk.Consts[1])
	}
	if inner.Name != "f" || inner.Arity != 1 {
		t.Fatalf("unexpected function %s", inner)
	}
	expectCode(t, inner, []byte{
		OP_LOAD_LOCAL, 0x01,
		OP_CONSTANT, 0x00,
		OP_ADD,
		OP_RETURN,
	})
}

func TestCompileFunctionBlockBody(t *testing.T) {
	fn := compileSource(t, `
fn fib(n) {
  if n <= 2: return 1;
  return fib(n - 1) + fib(n - 2);
}
print fib(10);`)
	inner := fn.Chunk.Consts[1].(*Function)
	if inner.String() != "<fn fib '1>" {
		t.Fatalf("unexpected display %q", inner.String())
	}
	code := inner.Chunk.Code
	if code[len(code)-2] != OP_FALSE || code[len(code)-1] != OP_RETURN {
		t.Fatalf("expected implicit false return, got % x", code)
	}
	if inner.Chunk.Lines[0] != 3 {
		t.Fatalf("expected body to start on line 3, got %d", inner.Chunk.Lines[0])
	}
}

func TestCompileLocalFunction(t *testing.T) {
	fn := compileSource(t, "{ fn nop() {} nop(); }")
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x00,
		OP_LOAD_LOCAL, 0x01,
		OP_CALL, 0x00,
		OP_POP,
		OP_POP,
		OP_FALSE,
		OP_RETURN,
	})
	inner := fn.Chunk.Consts[0].(*Function)
	expectCode(t, inner, []byte{OP_FALSE, OP_RETURN})
}

func TestCompileExpression(t *testing.T) {
	fn, err := CompileExpression("1 + 2")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	expectCode(t, fn, []byte{
		OP_CONSTANT, 0x00,
		OP_CONSTANT, 0x01,
		OP_ADD,
		OP_RETURN,
	})
	if _, err := CompileExpression("var x = 1;"); err == nil {
		t.Fatalf("expected error for statement in expression mode")
	}
	if _, err := CompileExpression("1 2"); err == nil {
		t.Fatalf("expected error for trailing tokens")
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"{ var a = 1; var a = 100; }", "Already a variable with this name in this scope"},
		{"{ var a = a; }", "Can't read local variable in its own initializer"},
		{"{ var a = 100; { var a = a; } }", "Can't read local variable in its own initializer"},
		{"1 + 2 = 3;", "Invalid assignment target"},
		{"var a = 1; a + 1 += 2;", "Invalid assignment target"},
		{"break;", "Can't use 'break' outside of a loop"},
		{"continue;", "Can't use 'continue' outside of a loop"},
		{"return 1;", "Can't return from top-level code"},
		{"print 1", "[line 1] Error at end: Expect ';' after value"},
		{"print ;", "[line 1] Error at ';': Expect expression"},
		{"print #;", "[line 1] Error: Unexpected character"},
		{"if true print 1;", "Expect ':' after condition"},
		{"fn f(a { }", "Expect ')' after parameters"},
		{"fn f() { break; }", "outside of a loop"},
	}
	for _, tt := range tests {
		expectCompileError(t, tt.src, tt.want)
	}
}

func TestCompileBreakDoesNotCrossFunctions(t *testing.T) {
	expectCompileError(t, "while true: { fn f() { break; } }", "Can't use 'break' outside of a loop")
}

func TestCompileReportsEachErrorOnce(t *testing.T) {
	err := expectCompileError(t, "print ;\nprint ;\nprint 1;", "Expect expression")
	diags := err.Diagnostics()
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d: %v", len(diags), diags)
	}
	if diags[0].Line != 1 || diags[1].Line != 2 {
		t.Fatalf("unexpected lines %d, %d", diags[0].Line, diags[1].Line)
	}
}

func TestCompileTooManyLocals(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("{")
	for i := 0; i < 256; i++ {
		fmt.Fprintf(&sb, " var v%d = 0;", i)
	}
	sb.WriteString(" }")
	expectCompileError(t, sb.String(), "Too many locals in function")
}

func TestCompileTooManyConstants(t *testing.T) {
	var sb strings.Builder
	for i := 0; i <= 256; i++ {
		fmt.Fprintf(&sb, "print %d;\n", i)
	}
	expectCompileError(t, sb.String(), "Too many constants in one chunk")
}

func TestCompileJumpTooLarge(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("if true: {")
	for i := 0; i < 22000; i++ {
		sb.WriteString(" print 1;")
	}
	sb.WriteString(" }")
	expectCompileError(t, sb.String(), "Too much code to jump over")

	sb.Reset()
	sb.WriteString("while true: {")
	for i := 0; i < 22000; i++ {
		sb.WriteString(" print 1;")
	}
	sb.WriteString(" }")
	expectCompileError(t, sb.String(), "Loop body too large")
}
