// SpeedCalc CLI - runs calculator scripts, the REPL and the servers.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"github.com/tliron/commonlog"

	"github.com/rthome/SpeedCalc/internal/bytecode"
	"github.com/rthome/SpeedCalc/internal/config"
	"github.com/rthome/SpeedCalc/internal/history"
	"github.com/rthome/SpeedCalc/internal/vm"

	_ "github.com/rthome/SpeedCalc/internal/builtins"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("speedcalc.cli")

// Exit codes follow sysexits.h.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 64
	exitCompile  = 65
	exitInternal = 70
)

type app struct {
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	errOut *termenv.Output
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(a *app, args []string) int
}

var commands = []command{
	{"run", "run FILE", "interpret a script file", (*app).runFile},
	{"repl", "repl", "start the interactive prompt", (*app).repl},
	{"eval", "eval EXPR", "evaluate an expression or statements", (*app).eval},
	{"disasm", "disasm FILE", "print the bytecode of a script", (*app).disasm},
	{"bench", "bench [-runs N] [-scale F] [-only NAME]", "run the benchmark suite", (*app).bench},
	{"history", "history [-n N] [-session ID] [-clear]", "list or clear recorded calculations", (*app).history},
	{"serve", "serve [-addr ADDR] [-lsp-addr ADDR]", "run the RPC server and optional TCP language server", (*app).serve},
	{"lsp", "lsp", "run the language server over stdio", (*app).lsp},
	{"remote", "remote [-addr URL] [-session ID] EXPR", "evaluate on a running server", (*app).remote},
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("speedcalc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbosity := fs.Int("v", -1, "Log verbosity (overrides the config file)")
	configDir := fs.String("config", "", "Directory to search for "+config.FileName)
	logFile := fs.String("log", "", "Log file (default: stderr)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: speedcalc [options] COMMAND [args]\n\nCommands:\n")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-42s %s\n", c.usage, c.summary)
		}
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	a := &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		errOut: termenv.NewOutput(stderr),
	}

	start := *configDir
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			a.errorf("%s", err)
			return exitFailure
		}
		start = wd
	}
	cfg, err := config.FindAndLoad(start)
	if err != nil {
		a.errorf("%s", err)
		return exitFailure
	}
	a.cfg = cfg

	level := cfg.Log.Verbosity
	if *verbosity >= 0 {
		level = *verbosity
	}
	path := cfg.Log.File
	if *logFile != "" {
		path = *logFile
	}
	if path != "" {
		commonlog.Configure(level, &path)
	} else {
		commonlog.Configure(level, nil)
	}
	if cfg.Dir != "" {
		log.Debugf("loaded configuration from %s", cfg.Dir)
	}

	name := fs.Arg(0)
	for _, c := range commands {
		if c.name == name {
			return c.run(a, fs.Args()[1:])
		}
	}
	a.errorf("unknown command %q", name)
	fs.Usage()
	return exitUsage
}

// errorf writes a message to stderr, in red when stderr supports color.
func (a *app) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(a.stderr, a.errOut.String(msg).Foreground(a.errOut.Color("1")).String())
}

func (a *app) newVM() *vm.VM {
	opts := vm.Options{
		MaxFrames: a.cfg.VM.MaxFrames,
		Stdout:    a.stdout,
		Stderr:    a.stderr,
	}
	if a.cfg.VM.Trace {
		opts.Trace = func(info vm.TraceInfo) {
			log.Debugf("%04d %-16s %s line %d depth %d", info.IP, bytecode.OpName(info.Op), info.Function, info.Line, info.Depth)
		}
	}
	return vm.NewWithOptions(opts)
}

// openHistory opens the configured store, or returns nil when history is
// disabled or unavailable.
func (a *app) openHistory() *history.Store {
	if !a.cfg.History.Enabled || a.cfg.History.Path == "" {
		return nil
	}
	store, err := history.Open(a.cfg.History.Path)
	if err != nil {
		log.Warningf("history disabled: %s", err)
		return nil
	}
	return store
}

func resultExitCode(res vm.Result) int {
	switch res {
	case vm.ResultCompileError:
		return exitCompile
	case vm.ResultRuntimeError:
		return exitInternal
	default:
		return exitOK
	}
}
