package server

import (
	"google.golang.org/protobuf/types/known/structpb"
)

// EvalResult is the outcome of one Evaluate call.
type EvalResult struct {
	Status       string
	Result       string
	Output       []string
	Diagnostics  []string
	Instructions int64
	Session      string
	ID           string
}

// CheckDiagnostic is one compile error reported by Check.
type CheckDiagnostic struct {
	Line    int
	Message string
}

// CheckResult is the outcome of one Check call.
type CheckResult struct {
	Valid       bool
	Diagnostics []CheckDiagnostic
}

func stringList(items []string) *structpb.Value {
	values := make([]*structpb.Value, len(items))
	for i, s := range items {
		values[i] = structpb.NewStringValue(s)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func readStrings(v *structpb.Value) []string {
	list := v.GetListValue().GetValues()
	if len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	for i, item := range list {
		out[i] = item.GetStringValue()
	}
	return out
}

func evalRequest(source, session string) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"source": structpb.NewStringValue(source),
	}
	if session != "" {
		fields["session"] = structpb.NewStringValue(session)
	}
	return &structpb.Struct{Fields: fields}
}

func (r *EvalResult) toStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"status":       structpb.NewStringValue(r.Status),
		"result":       structpb.NewStringValue(r.Result),
		"output":       stringList(r.Output),
		"diagnostics":  stringList(r.Diagnostics),
		"instructions": structpb.NewNumberValue(float64(r.Instructions)),
		"session":      structpb.NewStringValue(r.Session),
		"id":           structpb.NewStringValue(r.ID),
	}}
}

func evalResultFrom(s *structpb.Struct) *EvalResult {
	f := s.GetFields()
	return &EvalResult{
		Status:       f["status"].GetStringValue(),
		Result:       f["result"].GetStringValue(),
		Output:       readStrings(f["output"]),
		Diagnostics:  readStrings(f["diagnostics"]),
		Instructions: int64(f["instructions"].GetNumberValue()),
		Session:      f["session"].GetStringValue(),
		ID:           f["id"].GetStringValue(),
	}
}

func (r *CheckResult) toStruct() *structpb.Struct {
	diags := make([]*structpb.Value, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		diags[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"line":    structpb.NewNumberValue(float64(d.Line)),
			"message": structpb.NewStringValue(d.Message),
		}})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"valid":       structpb.NewBoolValue(r.Valid),
		"diagnostics": structpb.NewListValue(&structpb.ListValue{Values: diags}),
	}}
}

func checkResultFrom(s *structpb.Struct) *CheckResult {
	f := s.GetFields()
	res := &CheckResult{Valid: f["valid"].GetBoolValue()}
	for _, v := range f["diagnostics"].GetListValue().GetValues() {
		d := v.GetStructValue().GetFields()
		res.Diagnostics = append(res.Diagnostics, CheckDiagnostic{
			Line:    int(d["line"].GetNumberValue()),
			Message: d["message"].GetStringValue(),
		})
	}
	return res
}
