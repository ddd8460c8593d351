package attributes

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// idExpr is a compiled -t or -p expression evaluated once per run.
type idExpr struct {
	kind    string
	program *vm.Program
}

func compileID(kind, src string) (*idExpr, error) {
	program, err := expr.Compile(src, expr.Env(runEnvTemplate()))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s expression: %w", kind, err)
	}
	return &idExpr{kind: kind, program: program}, nil
}

func (e *idExpr) eval(run *RunContext) (string, error) {
	if run == nil {
		return "", errors.New("no run context available")
	}
	out, err := expr.Run(e.program, run.env())
	if err != nil {
		return "", fmt.Errorf("failed to evaluate %s expression: %w", e.kind, err)
	}
	return fmt.Sprint(out), nil
}

// TraceIDEvaluator turns the -t flag into the trace id of the drain span.
// An empty flag leaves the id zero so the SDK picks a random one.
type TraceIDEvaluator struct {
	expr    *idExpr
	literal trace.TraceID
}

func NewTraceIDEvaluator(src string) (*TraceIDEvaluator, error) {
	if src == "" {
		return &TraceIDEvaluator{}, nil
	}
	if id, err := trace.TraceIDFromHex(src); err == nil {
		return &TraceIDEvaluator{literal: id}, nil
	}
	e, err := compileID("trace-id", src)
	if err != nil {
		return nil, err
	}
	return &TraceIDEvaluator{expr: e}, nil
}

// EvaluateAndValidate returns the trace id for run. Results that are not 32
// hex characters are hashed, and the returned warnings record the raw value.
func (e *TraceIDEvaluator) EvaluateAndValidate(run *RunContext) (trace.TraceID, []attribute.KeyValue, error) {
	if e.expr == nil {
		return e.literal, nil, nil
	}
	result, err := e.expr.eval(run)
	if err != nil {
		return trace.TraceID{}, nil, err
	}
	if id, err := trace.TraceIDFromHex(result); err == nil {
		return id, nil, nil
	}

	sum := sha256.Sum256([]byte(result))
	var id trace.TraceID
	copy(id[:], sum[:len(id)])
	return id, []attribute.KeyValue{
		attribute.String("_trace_id_expr_result", result),
		attribute.String("_trace_id_invalid_warning",
			fmt.Sprintf("Expression result %q is not a valid 32-char hex trace ID, used SHA-256 hash instead", result)),
	}, nil
}

// ParentIDEvaluator turns the -p flag into the remote parent span id.
type ParentIDEvaluator struct {
	expr    *idExpr
	literal trace.SpanID
}

func NewParentIDEvaluator(src string) (*ParentIDEvaluator, error) {
	if src == "" {
		return &ParentIDEvaluator{}, nil
	}
	if id, err := trace.SpanIDFromHex(src); err == nil {
		return &ParentIDEvaluator{literal: id}, nil
	}
	e, err := compileID("parent-id", src)
	if err != nil {
		return nil, err
	}
	return &ParentIDEvaluator{expr: e}, nil
}

// EvaluateAndValidate returns the parent span id for run. An invalid result
// yields a zero id, meaning no parent, plus warnings.
func (e *ParentIDEvaluator) EvaluateAndValidate(run *RunContext) (trace.SpanID, []attribute.KeyValue, error) {
	if e.expr == nil {
		return e.literal, nil, nil
	}
	result, err := e.expr.eval(run)
	if err != nil {
		return trace.SpanID{}, nil, err
	}
	if id, err := trace.SpanIDFromHex(result); err == nil {
		return id, nil, nil
	}
	return trace.SpanID{}, []attribute.KeyValue{
		attribute.String("_parent_id_expr_result", result),
		attribute.String("_parent_id_invalid_warning",
			fmt.Sprintf("Expression result %q is not a valid 16-char hex span ID, using null parent ID instead", result)),
	}, nil
}
