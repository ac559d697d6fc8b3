package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rthome/SpeedCalc/internal/bytecode"
	"github.com/rthome/SpeedCalc/internal/compiler"
	"github.com/rthome/SpeedCalc/internal/history"
	"github.com/rthome/SpeedCalc/internal/vm"
)

const (
	ServiceName       = "speedcalc.v1.CalculatorService"
	EvaluateProcedure = "/" + ServiceName + "/Evaluate"
	CheckProcedure    = "/" + ServiceName + "/Check"
)

// EvalService implements the calculator RPCs.
type EvalService struct {
	worker   *Worker
	sessions *SessionStore
	history  *history.Store
}

// NewEvalService creates an EvalService. store may be nil.
func NewEvalService(worker *Worker, sessions *SessionStore, store *history.Store) *EvalService {
	return &EvalService{
		worker:   worker,
		sessions: sessions,
		history:  store,
	}
}

// Evaluate runs source in the requested session, creating one when none is
// given. Expressions report their value; statements report false.
func (s *EvalService) Evaluate(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()
	source := fields["source"].GetStringValue()
	if strings.TrimSpace(source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}
	sessionID := fields["session"].GetStringValue()

	fn, compileErr := compileEither(source)
	if compileErr != nil {
		s.record(ctx, &EvalResult{
			Status:      vm.ResultCompileError.String(),
			Diagnostics: diagnosticLines(compileErr),
			Session:     sessionID,
		}, source, 0)
		return nil, connect.NewError(connect.CodeInvalidArgument, compileErr)
	}

	start := time.Now()
	value, err := s.worker.Do(func(base *vm.VM) any {
		var session *Session
		if sessionID == "" {
			session = s.sessions.Create(base)
		} else {
			var ok bool
			if session, ok = s.sessions.Get(sessionID); !ok {
				return nil
			}
		}
		return run(session, fn)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if value == nil {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", sessionID))
	}

	result := value.(*EvalResult)
	s.record(ctx, result, source, time.Since(start))
	return connect.NewResponse(result.toStruct()), nil
}

// Check compiles source without running it.
func (s *EvalService) Check(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	source := req.Msg.GetFields()["source"].GetStringValue()
	if strings.TrimSpace(source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	res := &CheckResult{Valid: true}
	if _, err := compileEither(source); err != nil {
		res.Valid = false
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			for _, d := range cerr.Diagnostics() {
				res.Diagnostics = append(res.Diagnostics, CheckDiagnostic{Line: d.Line, Message: d.String()})
			}
		}
	}
	return connect.NewResponse(res.toStruct()), nil
}

// compileEither compiles source as an expression, falling back to a
// program. The program's diagnostics are reported when both fail.
func compileEither(source string) (*bytecode.Function, error) {
	if fn, err := compiler.CompileExpression(source); err == nil {
		return fn, nil
	}
	return compiler.Compile(source)
}

// run executes fn on the session VM. Must be called on the worker goroutine.
func run(session *Session, fn *bytecode.Function) *EvalResult {
	var stdout, stderr bytes.Buffer
	machine := session.VM
	machine.SetStdout(&stdout)
	machine.SetStderr(&stderr)

	res, _ := machine.Interpret(fn)
	result := &EvalResult{
		Status:       res.String(),
		Instructions: machine.InstructionCounter(),
		Session:      session.ID,
	}
	if res == vm.ResultSuccess {
		if v, err := machine.Pop(); err == nil {
			result.Result = v.String()
		}
	}
	result.Output = lines(stdout.String())
	result.Diagnostics = lines(stderr.String())
	return result
}

func (s *EvalService) record(ctx context.Context, r *EvalResult, source string, elapsed time.Duration) {
	if s.history == nil {
		return
	}
	status := history.StatusSuccess
	switch r.Status {
	case vm.ResultCompileError.String():
		status = history.StatusCompileError
	case vm.ResultRuntimeError.String():
		status = history.StatusRuntimeError
	}
	entry, err := s.history.Record(ctx, history.Entry{
		Session: r.Session,
		Source:  source,
		Status:  status,
		Result:  r.Result,
		Transcript: history.Transcript{
			Output:        r.Output,
			Diagnostics:   r.Diagnostics,
			Instructions:  r.Instructions,
			DurationNanos: int64(elapsed),
		},
	})
	if err != nil {
		log.Warningf("recording history: %s", err)
		return
	}
	r.ID = entry.ID
}

func diagnosticLines(err error) []string {
	var cerr *compiler.Error
	if !errors.As(err, &cerr) {
		return []string{err.Error()}
	}
	diags := cerr.Diagnostics()
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.String()
	}
	return out
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
