package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	speedcalc "github.com/rthome/SpeedCalc"
	"github.com/rthome/SpeedCalc/internal/bench"
	"github.com/rthome/SpeedCalc/internal/bytecode"
	"github.com/rthome/SpeedCalc/internal/compiler"
	"github.com/rthome/SpeedCalc/internal/history"
	"github.com/rthome/SpeedCalc/internal/repl"
	"github.com/rthome/SpeedCalc/internal/server"
	"github.com/rthome/SpeedCalc/internal/vm"
)

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) runFile(args []string) int {
	if len(args) != 1 {
		a.errorf("usage: speedcalc run FILE")
		return exitUsage
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		a.errorf("%s", err)
		return exitFailure
	}
	machine := a.newVM()
	res := machine.InterpretSource(string(data))
	if res == vm.ResultSuccess {
		machine.Pop()
	}
	log.Debugf("%s: %s after %d instructions", args[0], res, machine.InstructionCounter())
	return resultExitCode(res)
}

func (a *app) eval(args []string) int {
	source := strings.Join(args, " ")
	if strings.TrimSpace(source) == "" {
		a.errorf("usage: speedcalc eval EXPR")
		return exitUsage
	}

	calc := speedcalc.NewVMWithOptions(speedcalc.Options{
		MaxFrames: a.cfg.VM.MaxFrames,
		Stdout:    a.stdout,
		Stderr:    a.stderr,
	})
	start := time.Now()
	value, err := calc.Evaluate(context.Background(), source)
	elapsed := time.Since(start)

	entry := history.Entry{
		Session: "cli",
		Source:  source,
		Transcript: history.Transcript{
			Instructions:  calc.InstructionCounter(),
			DurationNanos: int64(elapsed),
		},
	}
	code := exitOK
	var (
		cerr *speedcalc.CompileError
		rerr *speedcalc.RuntimeError
	)
	switch {
	case errors.As(err, &cerr):
		a.errorf("%s", cerr)
		entry.Status = history.StatusCompileError
		entry.Transcript.Diagnostics = strings.Split(cerr.Error(), "\n")
		code = exitCompile
	case errors.As(err, &rerr):
		entry.Status = history.StatusRuntimeError
		entry.Transcript.Diagnostics = []string{rerr.Message}
		code = exitInternal
	case err != nil:
		a.errorf("%s", err)
		return exitFailure
	default:
		entry.Result = value.String()
		fmt.Fprintln(a.stdout, entry.Result)
	}

	if store := a.openHistory(); store != nil {
		defer store.Close()
		if _, err := store.Record(context.Background(), entry); err != nil {
			log.Warningf("recording history: %s", err)
		}
	}
	return code
}

func (a *app) disasm(args []string) int {
	if len(args) != 1 {
		a.errorf("usage: speedcalc disasm FILE")
		return exitUsage
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		a.errorf("%s", err)
		return exitFailure
	}
	fn, err := compiler.Compile(string(data))
	if err != nil {
		a.errorf("%s", err)
		return exitCompile
	}
	if err := bytecode.NewDisassembler(a.stdout).DisassembleFunction(fn); err != nil {
		a.errorf("%s", err)
		return exitFailure
	}
	return exitOK
}

func (a *app) repl(args []string) int {
	machine := a.newVM()
	opts := repl.Options{
		Banner:  "SpeedCalc REPL | type 'exit' to quit",
		Session: uuid.New().String(),
	}
	if store := a.openHistory(); store != nil {
		defer store.Close()
		opts.History = store
	}
	if err := repl.Start(a.stdin, a.stdout, a.stderr, machine, opts); err != nil {
		a.errorf("%s", err)
		return exitFailure
	}
	return exitOK
}

func (a *app) bench(args []string) int {
	fs := a.flagSet("bench")
	runs := fs.Int("runs", 3, "Timed runs per benchmark")
	scale := fs.Float64("scale", 1, "Multiplier for loop counts")
	only := fs.String("only", "", "Run a single benchmark by name")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	suite := bench.All()
	if *only != "" {
		b, ok := bench.Lookup(*only)
		if !ok {
			a.errorf("unknown benchmark %q", *only)
			return exitUsage
		}
		suite = []bench.Benchmark{b}
	}

	var results []bench.Results
	for _, b := range suite {
		fmt.Fprintf(a.stderr, "running %s/%s...\n", b.Category, b.Name)
		res, err := bench.Run(b.Scaled(*scale), *runs)
		if err != nil {
			a.errorf("%s", err)
			return exitFailure
		}
		results = append(results, res)
	}
	bench.Report(a.stdout, results)
	return exitOK
}

func (a *app) history(args []string) int {
	fs := a.flagSet("history")
	limit := fs.Int("n", 20, "Number of entries to show")
	session := fs.String("session", "", "Only show entries of this session")
	clearAll := fs.Bool("clear", false, "Delete the selected entries")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if !a.cfg.History.Enabled {
		a.errorf("history is disabled in the configuration")
		return exitFailure
	}
	store, err := history.Open(a.cfg.History.Path)
	if err != nil {
		a.errorf("%s", err)
		return exitFailure
	}
	defer store.Close()

	ctx := context.Background()
	if *clearAll {
		n, err := store.Clear(ctx, *session)
		if err != nil {
			a.errorf("%s", err)
			return exitFailure
		}
		fmt.Fprintf(a.stdout, "removed %d entries\n", n)
		return exitOK
	}

	entries, err := store.Recent(ctx, *session, *limit)
	if err != nil {
		a.errorf("%s", err)
		return exitFailure
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		source := strings.ReplaceAll(e.Source, "\n", " ")
		switch e.Status {
		case history.StatusSuccess:
			fmt.Fprintf(a.stdout, "%-14s %s  = %s\n", humanize.Time(e.CreatedAt), source, e.Result)
		default:
			fmt.Fprintf(a.stdout, "%-14s %s  (%s)\n", humanize.Time(e.CreatedAt), source, e.Status)
		}
	}
	return exitOK
}

func (a *app) serve(args []string) int {
	fs := a.flagSet("serve")
	addr := fs.String("addr", a.cfg.Server.Addr, "RPC listen address")
	lspAddr := fs.String("lsp-addr", a.cfg.Server.LSPAddr, "Language server TCP address (empty: disabled)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	var opts []server.Option
	if store := a.openHistory(); store != nil {
		defer store.Close()
		opts = append(opts, server.WithHistory(store))
	}
	srv := server.New(a.newVM(), opts...)
	defer srv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(gctx, *addr)
	})
	if *lspAddr != "" {
		lsp := server.NewLSP(a.newVM())
		defer lsp.Stop()
		g.Go(func() error {
			errc := make(chan error, 1)
			go func() { errc <- lsp.RunTCP(*lspAddr) }()
			select {
			case err := <-errc:
				return err
			case <-gctx.Done():
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		a.errorf("%s", err)
		return exitFailure
	}
	return exitOK
}

func (a *app) lsp(args []string) int {
	lsp := server.NewLSP(a.newVM())
	defer lsp.Stop()
	if err := lsp.RunStdio(); err != nil {
		a.errorf("%s", err)
		return exitFailure
	}
	return exitOK
}

func (a *app) remote(args []string) int {
	fs := a.flagSet("remote")
	addr := fs.String("addr", "http://"+a.cfg.Server.Addr, "Server base URL")
	session := fs.String("session", "", "Session to evaluate in (empty: new session)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	source := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(source) == "" {
		a.errorf("usage: speedcalc remote [-addr URL] [-session ID] EXPR")
		return exitUsage
	}

	client := server.NewClient(http.DefaultClient, *addr)
	res, err := client.Evaluate(context.Background(), source, *session)
	if err != nil {
		a.errorf("%s", err)
		if connect.CodeOf(err) == connect.CodeInvalidArgument {
			return exitCompile
		}
		return exitFailure
	}
	for _, line := range res.Output {
		fmt.Fprintln(a.stdout, line)
	}
	for _, line := range res.Diagnostics {
		fmt.Fprintln(a.stderr, line)
	}
	if *session == "" {
		fmt.Fprintf(a.stderr, "session %s\n", res.Session)
	}
	switch res.Status {
	case vm.ResultSuccess.String():
		fmt.Fprintln(a.stdout, res.Result)
		return exitOK
	case vm.ResultRuntimeError.String():
		return exitInternal
	default:
		return exitFailure
	}
}
