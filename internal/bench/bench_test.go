package bench

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestSuiteRunsScaledDown(t *testing.T) {
	for _, b := range All() {
		b := b.Scaled(0.001)
		t.Run(b.Name, func(t *testing.T) {
			res, err := Run(b, 1)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(res.Durations) != 1 || len(res.Instructions) != 1 {
				t.Fatalf("runs recorded = %d/%d, want 1", len(res.Durations), len(res.Instructions))
			}
			if res.Instructions[0] <= 0 {
				t.Fatalf("instructions = %d, want > 0", res.Instructions[0])
			}
		})
	}
}

func TestAllOrdering(t *testing.T) {
	all := All()
	if len(all) != 9 {
		t.Fatalf("suite size = %d, want 9", len(all))
	}
	if all[0].Category != CategoryCalculations || all[0].Name != "NewtonRoots" {
		t.Fatalf("first = %s/%s", all[0].Category, all[0].Name)
	}
	last := all[len(all)-1]
	if last.Category != CategoryNative || last.Name != "RandomCalls" {
		t.Fatalf("last = %s/%s", last.Category, last.Name)
	}
}

func TestScaledSource(t *testing.T) {
	tests := []struct {
		name  string
		scale float64
		want  string
	}{
		{"CountForLoop", 0, "i < 1000000;"},
		{"CountForLoop", 0.001, "i < 1000;"},
		{"CountWhileLoop", 0.5, "i < 500000:"},
		{"NewtonRoots", 0.01, "i < 100;"},
		{"RecursiveFibonacci30", 1, "fibonacci(30);"},
		{"RecursiveFibonacci30", 0.25, "fibonacci(28);"},
	}
	for _, tt := range tests {
		b, ok := Lookup(tt.name)
		if !ok {
			t.Fatalf("Lookup(%s) failed", tt.name)
		}
		src := b.Scaled(tt.scale).Source()
		if !strings.Contains(src, tt.want) {
			t.Fatalf("%s at %v: source %q lacks %q", tt.name, tt.scale, src, tt.want)
		}
	}

	b, _ := Lookup("IncrementVariable")
	if n := strings.Count(b.Scaled(0.0001).Source(), "i += 1;"); n != 100 {
		t.Fatalf("IncrementVariable statements = %d, want 100", n)
	}
}

func TestResultsAverages(t *testing.T) {
	r := Results{
		Durations:    []time.Duration{2 * time.Millisecond, 4 * time.Millisecond},
		Instructions: []int64{3000, 3000},
	}
	if got := r.AvgDuration(); got != 3*time.Millisecond {
		t.Fatalf("AvgDuration = %s", got)
	}
	if got := r.AvgInstructions(); got != 3000 {
		t.Fatalf("AvgInstructions = %v", got)
	}
	if got := r.InstructionsPerMs(); got != 1000 {
		t.Fatalf("InstructionsPerMs = %v", got)
	}
	if got := (Results{}).InstructionsPerMs(); got != 0 {
		t.Fatalf("empty InstructionsPerMs = %v", got)
	}
}

func TestReport(t *testing.T) {
	b, _ := Lookup("CountForLoop")
	var buf bytes.Buffer
	Report(&buf, []Results{{
		Benchmark:    b,
		Durations:    []time.Duration{10 * time.Millisecond},
		Instructions: []int64{12345678},
	}})
	out := buf.String()
	for _, want := range []string{"Category", "Avg Instr/ms", "MicroBenchmark", "CountForLoop", "12,345,678", "10.0ms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 5 {
		t.Fatalf("report lines = %d, want 5:\n%s", lines, out)
	}
}
