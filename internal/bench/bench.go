// Package bench runs the interpreter benchmark suite.
package bench

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	_ "github.com/rthome/SpeedCalc/internal/builtins"
	"github.com/rthome/SpeedCalc/internal/vm"
)

const (
	CategoryMicro        = "MicroBenchmark"
	CategoryCalculations = "Calculations"
	CategoryNative       = "Native Calls"
)

const (
	loopCount      = 1000000
	newtonCount    = 10000
	fibonacciDepth = 30
)

// Benchmark is a named script. Scale shrinks or grows its loop counts.
type Benchmark struct {
	Category string
	Name     string
	Scale    float64

	source func(scale float64) string
}

// Source returns the script at the benchmark's scale.
func (b Benchmark) Source() string {
	scale := b.Scale
	if scale <= 0 {
		scale = 1
	}
	return b.source(scale)
}

// Scaled returns a copy of b with its loop counts multiplied by scale.
func (b Benchmark) Scaled(scale float64) Benchmark {
	b.Scale = scale
	return b
}

func scaled(n int, scale float64) int {
	v := int(math.Round(float64(n) * scale))
	if v < 1 {
		return 1
	}
	return v
}

func loop(body string) func(float64) string {
	return func(scale float64) string {
		return strings.ReplaceAll(body, "COUNT", strconv.Itoa(scaled(loopCount, scale)))
	}
}

func incrementVariable(scale float64) string {
	var sb strings.Builder
	sb.WriteString("var i = 0; ")
	n := scaled(loopCount, scale)
	for i := 0; i < n; i++ {
		sb.WriteString("i += 1;")
	}
	return sb.String()
}

func recursiveFibonacci(scale float64) string {
	// Each step down in depth roughly halves the work.
	depth := fibonacciDepth
	if scale < 1 {
		depth += int(math.Floor(math.Log2(scale)))
		if depth < 3 {
			depth = 3
		}
	}
	return fmt.Sprintf(`
fn fibonacci(n) {
    if n <= 2:
        return 1;
    else:
        return fibonacci(n - 1) + fibonacci(n - 2);
}

fibonacci(%d);`, depth)
}

func newtonRoots(scale float64) string {
	return fmt.Sprintf(`
fn newton(x, n) {
    var y = x / 2;
    for var i = 0; i < 8; i += 1: {
        y = ((n-1) * y**n + x) / (n * y**(n-1));
    }
    return y;
}

for var i = 0; i < %d; i += 1: {
    newton(58463165, 2);
    newton(8732648, 3);
    newton(216876, 5);
}`, scaled(newtonCount, scale))
}

var suite = []Benchmark{
	{Category: CategoryMicro, Name: "CountForLoop", source: loop("for var i = 0; i < COUNT; i += 1: {}")},
	{Category: CategoryMicro, Name: "CountWhileLoop", source: loop("var i = 0; while i < COUNT: i += 1;")},
	{Category: CategoryMicro, Name: "FunctionCallGlobal", source: loop("fn nop() {} for var i = 0; i < COUNT; i += 1: { nop(); }")},
	{Category: CategoryMicro, Name: "FunctionCallLocal", source: loop("{ fn nop() {} for var i = 0; i < COUNT; i += 1: { nop(); } }")},
	{Category: CategoryMicro, Name: "IncrementVariable", source: incrementVariable},

	{Category: CategoryNative, Name: "ClockCalls", source: loop("for var i = 0; i < COUNT; i += 1: clock();")},
	{Category: CategoryNative, Name: "RandomCalls", source: loop("for var i = 0; i < COUNT; i += 1: random();")},

	{Category: CategoryCalculations, Name: "RecursiveFibonacci30", source: recursiveFibonacci},
	{Category: CategoryCalculations, Name: "NewtonRoots", source: newtonRoots},
}

// All returns the suite ordered by category, then name.
func All() []Benchmark {
	out := make([]Benchmark, len(suite))
	copy(out, suite)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Lookup finds a benchmark by name.
func Lookup(name string) (Benchmark, bool) {
	for _, b := range suite {
		if b.Name == name {
			return b, true
		}
	}
	return Benchmark{}, false
}

// Results holds the measurements of one benchmark.
type Results struct {
	Benchmark    Benchmark
	Durations    []time.Duration
	Instructions []int64
}

// AvgDuration is the mean wall time of the runs.
func (r Results) AvgDuration() time.Duration {
	if len(r.Durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range r.Durations {
		total += d
	}
	return total / time.Duration(len(r.Durations))
}

// AvgInstructions is the mean number of executed instructions.
func (r Results) AvgInstructions() float64 {
	if len(r.Instructions) == 0 {
		return 0
	}
	var total int64
	for _, n := range r.Instructions {
		total += n
	}
	return float64(total) / float64(len(r.Instructions))
}

// InstructionsPerMs is the mean throughput.
func (r Results) InstructionsPerMs() float64 {
	ms := float64(r.AvgDuration()) / float64(time.Millisecond)
	if ms == 0 {
		return 0
	}
	return r.AvgInstructions() / ms
}

// Run executes b once as a warmup and then runs times, each on a fresh VM.
func Run(b Benchmark, runs int) (Results, error) {
	if runs <= 0 {
		runs = 3
	}
	src := b.Source()

	warmup := vm.NewWithOptions(vm.Options{Stdout: io.Discard, Stderr: io.Discard})
	if res := warmup.InterpretSource(src); res != vm.ResultSuccess {
		return Results{}, fmt.Errorf("benchmark %s: %s", b.Name, res)
	}

	results := Results{Benchmark: b}
	for i := 0; i < runs; i++ {
		start := time.Now()
		machine := vm.NewWithOptions(vm.Options{Stdout: io.Discard, Stderr: io.Discard})
		res := machine.InterpretSource(src)
		elapsed := time.Since(start)
		if res != vm.ResultSuccess {
			return Results{}, fmt.Errorf("benchmark %s run %d: %s", b.Name, i+1, res)
		}
		machine.Pop()
		results.Durations = append(results.Durations, elapsed)
		results.Instructions = append(results.Instructions, machine.InstructionCounter())
	}
	return results, nil
}

// Report writes results as a table.
func Report(w io.Writer, results []Results) {
	if len(results) == 0 {
		return
	}
	headers := []string{"Category", "Name", "Avg Duration", "Instructions", "Avg Instr/ms"}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		ms := float64(r.AvgDuration()) / float64(time.Millisecond)
		rows = append(rows, []string{
			r.Benchmark.Category,
			r.Benchmark.Name,
			strconv.FormatFloat(ms, 'f', 1, 64) + "ms",
			humanize.Comma(int64(r.AvgInstructions())),
			humanize.CommafWithDigits(r.InstructionsPerMs(), 1),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	sep := "+"
	for _, wd := range widths {
		sep += strings.Repeat("-", wd+2) + "+"
	}
	line := func(cells []string, center bool) {
		var sb strings.Builder
		sb.WriteString("|")
		for i, cell := range cells {
			sb.WriteString(" ")
			if center || i >= 2 {
				sb.WriteString(padCenter(cell, widths[i]))
			} else {
				sb.WriteString(cell + strings.Repeat(" ", widths[i]-len(cell)))
			}
			sb.WriteString(" |")
		}
		fmt.Fprintln(w, sb.String())
	}

	fmt.Fprintln(w, sep)
	line(headers, true)
	fmt.Fprintln(w, sep)
	for _, row := range rows {
		line(row, false)
	}
	fmt.Fprintln(w, sep)
}

func padCenter(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}
