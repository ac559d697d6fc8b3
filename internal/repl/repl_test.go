package repl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/rthome/SpeedCalc/internal/builtins"
	"github.com/rthome/SpeedCalc/internal/history"
	"github.com/rthome/SpeedCalc/internal/vm"
)

func runREPL(t *testing.T, input string, opts Options) (*vm.VM, string, string) {
	t.Helper()
	machine := vm.New()
	var out, errOut bytes.Buffer
	if err := Start(strings.NewReader(input), &out, &errOut, machine, opts); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return machine, out.String(), errOut.String()
}

func TestExpressionsAndStatements(t *testing.T) {
	input := strings.Join([]string{
		"1 + 2",
		"var x = 10;",
		"x * 2",
		"print x;",
		"fn sq(n) = n * n;",
		"sq(x)",
	}, "\n")
	machine, out, errOut := runREPL(t, input, Options{Prompt: "> "})
	if errOut != "" {
		t.Fatalf("unexpected stderr: %q", errOut)
	}
	for _, want := range []string{"  = 3\n", "  = 20\n", "10\n", "  = 100\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if h := machine.StackHeight(); h != 0 {
		t.Fatalf("stack height after session = %d, want 0", h)
	}
}

func TestErrorsKeepSessionAlive(t *testing.T) {
	input := "1 +\n1 / 0\nvar y = 4;\ny"
	machine, out, errOut := runREPL(t, input, Options{})
	if !strings.Contains(errOut, "Error at end") {
		t.Fatalf("missing compile diagnostic: %q", errOut)
	}
	if !strings.Contains(errOut, "Division by zero") {
		t.Fatalf("missing runtime fault: %q", errOut)
	}
	if !strings.Contains(out, "  = 4\n") {
		t.Fatalf("session did not continue: %q", out)
	}
	if h := machine.StackHeight(); h != 0 {
		t.Fatalf("stack height = %d, want 0", h)
	}
}

func TestMultiLineBlocks(t *testing.T) {
	input := "fn add(a, b) {\n  return a + b;\n}\nadd(2, 3)"
	_, out, errOut := runREPL(t, input, Options{})
	if errOut != "" {
		t.Fatalf("unexpected stderr: %q", errOut)
	}
	if !strings.Contains(out, continuation) {
		t.Fatalf("continuation prompt not shown: %q", out)
	}
	if !strings.Contains(out, "  = 5\n") {
		t.Fatalf("output = %q", out)
	}
}

func TestExitAndCommands(t *testing.T) {
	_, out, _ := runREPL(t, "var z = 1;\n:globals\nexit\n2 + 2", Options{})
	if !strings.Contains(out, "clock") || !strings.Contains(out, "z") {
		t.Fatalf(":globals output = %q", out)
	}
	if strings.Contains(out, "  = 4") {
		t.Fatalf("input after exit was evaluated: %q", out)
	}
}

func TestRecordsHistory(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	runREPL(t, "print 7;\n2 * 3\n1 / 0", Options{History: store, Session: "repl-test"})

	entries, err := store.Recent(context.Background(), "repl-test", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	fault, expr, stmt := entries[0], entries[1], entries[2]
	if stmt.Source != "print 7;" || len(stmt.Transcript.Output) != 1 || stmt.Transcript.Output[0] != "7" {
		t.Fatalf("statement entry = %+v", stmt)
	}
	if expr.Result != "6" || expr.Status != history.StatusSuccess {
		t.Fatalf("expression entry = %+v", expr)
	}
	if fault.Status != history.StatusRuntimeError || len(fault.Transcript.Diagnostics) == 0 {
		t.Fatalf("fault entry = %+v", fault)
	}
}

func TestIsStatement(t *testing.T) {
	tests := map[string]bool{
		"1 + 2":            false,
		"print 1;":         true,
		"{ var a = 1; }":   true,
		"  x = 3;  ":       true,
		"sq(4)":            false,
		"print 1; // note": true,
		"1 + 2 // done;":   false,
		"x // }":           false,
	}
	for src, want := range tests {
		if got := IsStatement(src); got != want {
			t.Fatalf("IsStatement(%q) = %v, want %v", src, got, want)
		}
	}
}

func TestOpenBlocks(t *testing.T) {
	tests := map[string]int{
		"fn f() {":        1,
		"{ { }":           1,
		"{}":              0,
		"while true: { {": 2,
		"var a = 2; // {": 0,
		"fn f() { // }":   1,
	}
	for src, want := range tests {
		if got := openBlocks(src); got != want {
			t.Fatalf("openBlocks(%q) = %d, want %d", src, got, want)
		}
	}
}

func TestTrailingComments(t *testing.T) {
	input := "print 1; // note\nvar a = 2; // {\nprint 3;\na // value\n"
	_, out, errOut := runREPL(t, input, Options{Prompt: "> "})
	if errOut != "" {
		t.Fatalf("unexpected stderr: %q", errOut)
	}
	for _, want := range []string{"1\n", "3\n", "  = 2\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, continuation) {
		t.Fatalf("comment opened a block: %q", out)
	}
}
