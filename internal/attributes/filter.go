package attributes

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mrzor/rawtrace/internal/eventprocessor"
)

// Filter keeps the samples for which a boolean expression holds.
type Filter struct {
	program *vm.Program
}

// NewFilter compiles a filter expression such as
// `system == "sched" && fields.prev_pid > 0`.
func NewFilter(exprStr string) (*Filter, error) {
	program, err := expr.Compile(exprStr, expr.Env(sampleEnvTemplate()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", err)
	}
	return &Filter{program: program}, nil
}

// Match implements eventprocessor.Filter.
func (f *Filter) Match(s *eventprocessor.Sample) (bool, error) {
	output, err := expr.Run(f.program, SampleEnv(s))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter expression: %w", err)
	}
	ok, _ := output.(bool)
	return ok, nil
}
