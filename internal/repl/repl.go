// Package repl implements the interactive calculator prompt.
package repl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	"golang.org/x/term"

	"github.com/rthome/SpeedCalc/internal/compiler"
	"github.com/rthome/SpeedCalc/internal/history"
	"github.com/rthome/SpeedCalc/internal/lexer"
	"github.com/rthome/SpeedCalc/internal/token"
	"github.com/rthome/SpeedCalc/internal/vm"
)

var log = commonlog.GetLogger("speedcalc.repl")

const (
	DefaultPrompt = "> "
	continuation  = ". "
)

// Options configures a REPL session.
type Options struct {
	Prompt  string
	Banner  string
	History *history.Store
	Session string
}

// Start reads lines from in until EOF or an exit command, evaluating each
// against machine. Inputs whose last token is ';' or '}' are statements;
// anything else is tried as an expression whose value is printed as
// "  = value".
func Start(in io.Reader, out, errOut io.Writer, machine *vm.VM, opts Options) error {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	prevOut, prevErr := machine.Sinks()
	defer machine.SetStdout(prevOut)
	defer machine.SetStderr(prevErr)

	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		if of, ok := out.(*os.File); ok && isatty.IsTerminal(of.Fd()) {
			return startTerminal(f, of, machine, opts)
		}
	}

	r := &session{machine: machine, opts: opts}
	r.bind(out, errOut)
	if opts.Banner != "" {
		fmt.Fprintln(out, opts.Banner)
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return r.loop(func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return scanner.Text(), nil
	})
}

func startTerminal(in, out *os.File, machine *vm.VM, opts Options) error {
	state, err := term.MakeRaw(int(in.Fd()))
	if err != nil {
		return fmt.Errorf("enabling raw mode: %w", err)
	}
	defer term.Restore(int(in.Fd()), state)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, out}, opts.Prompt)
	if w, h, err := term.GetSize(int(in.Fd())); err == nil {
		t.SetSize(w, h)
	}

	r := &session{machine: machine, opts: opts}
	r.bind(t, t)
	if opts.Banner != "" {
		fmt.Fprintln(t, opts.Banner)
	}
	return r.loop(func(prompt string) (string, error) {
		t.SetPrompt(prompt)
		return t.ReadLine()
	})
}

type session struct {
	machine *vm.VM
	opts    Options

	out    io.Writer
	errOut io.Writer
	output bytes.Buffer
	diags  bytes.Buffer
}

// bind routes VM output to the user while keeping a copy for history.
func (r *session) bind(out, errOut io.Writer) {
	r.out = out
	r.errOut = errOut
	r.machine.SetStdout(io.MultiWriter(out, &r.output))
	r.machine.SetStderr(io.MultiWriter(errOut, &r.diags))
}

func (r *session) loop(readLine func(prompt string) (string, error)) error {
	var pending strings.Builder
	for {
		prompt := r.opts.Prompt
		if pending.Len() > 0 {
			prompt = continuation
		}
		line, err := readLine(prompt)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if pending.Len() == 0 {
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "exit", "quit", ":q":
				return nil
			case ":globals":
				fmt.Fprintln(r.out, strings.Join(r.machine.GlobalNames(), " "))
				continue
			case ":disasm":
				if err := r.machine.Disassemble(r.out); err != nil {
					fmt.Fprintln(r.errOut, err)
				}
				continue
			}
		} else {
			pending.WriteByte('\n')
		}
		pending.WriteString(line)

		src := pending.String()
		if openBlocks(src) > 0 {
			continue
		}
		pending.Reset()
		r.Eval(src)
	}
}

// Eval evaluates one input and records it.
func (r *session) Eval(src string) vm.Result {
	src = strings.TrimSpace(src)
	r.output.Reset()
	r.diags.Reset()
	start := time.Now()

	var (
		res    vm.Result
		result string
	)
	if IsStatement(src) {
		res = r.machine.InterpretSource(src)
		if res == vm.ResultSuccess {
			result = r.popResult()
		}
	} else {
		fn, err := compiler.CompileExpression(src)
		if err != nil {
			// Not an expression; accept it if it compiles as a script.
			if script, serr := compiler.Compile(src); serr == nil {
				if res, _ = r.machine.Interpret(script); res == vm.ResultSuccess {
					result = r.popResult()
				}
			} else {
				r.machine.ReportCompileError(err)
				res = vm.ResultCompileError
			}
		} else if res, _ = r.machine.Interpret(fn); res == vm.ResultSuccess {
			result = r.popResult()
			fmt.Fprintf(r.out, "  = %s\n", result)
		}
	}
	r.record(src, res, result, time.Since(start))
	return res
}

func (r *session) popResult() string {
	v, err := r.machine.Pop()
	if err != nil {
		return ""
	}
	return v.String()
}

func (r *session) record(src string, res vm.Result, result string, elapsed time.Duration) {
	if r.opts.History == nil {
		return
	}
	_, err := r.opts.History.Record(context.Background(), history.Entry{
		Session: r.opts.Session,
		Source:  src,
		Status:  history.Status(res),
		Result:  result,
		Transcript: history.Transcript{
			Output:        splitLines(r.output.String()),
			Diagnostics:   splitLines(r.diags.String()),
			Instructions:  r.machine.InstructionCounter(),
			DurationNanos: int64(elapsed),
		},
	})
	if err != nil {
		log.Warningf("recording history: %s", err)
	}
}

// IsStatement reports whether src reads as a statement rather than a bare
// expression, judged by its last token. Comments are ignored.
func IsStatement(src string) bool {
	last, _ := scan(src)
	return last == token.Semicolon || last == token.RBrace
}

// openBlocks counts unclosed braces.
func openBlocks(src string) int {
	_, depth := scan(src)
	return depth
}

func scan(src string) (last token.Kind, depth int) {
	last = token.EOF
	l := lexer.New(src)
	for {
		tok := l.NextToken()
		switch tok.Kind {
		case token.EOF:
			return last, depth
		case token.LBrace:
			depth++
		case token.RBrace:
			depth--
		}
		last = tok.Kind
	}
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
