package attributes

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/rawtrace/internal/config"
	"github.com/mrzor/rawtrace/internal/eventprocessor"
)

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator creates a new attribute evaluator.
// It pre-compiles all custom attribute expressions for efficiency.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	exprEnv := sampleEnvTemplate()

	// Pre-compile custom attribute expressions
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(exprEnv))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// EvaluateCustomAttributes evaluates custom attribute expressions for a sample.
// Expressions that fail at run time are logged and skipped.
func (e *Evaluator) EvaluateCustomAttributes(s *eventprocessor.Sample) ([]attribute.KeyValue, error) {
	if len(e.customAttrs) == 0 {
		return nil, nil
	}

	if s == nil {
		return nil, nil
	}

	env := SampleEnv(s)

	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		// Run the pre-compiled program
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			log.WithError(err).WithField("attribute", customAttr.Name).Debug("Failed to evaluate attribute expression")
			continue
		}

		// Check if output is a map - if so, expand it into multiple attributes
		outputValue := reflect.ValueOf(output)
		if outputValue.Kind() == reflect.Map {
			// Expand map into separate attributes with dot notation
			keys := outputValue.MapKeys()
			slices.SortFunc(keys, func(a, b reflect.Value) int {
				return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
			})
			for _, key := range keys {
				// Convert key to string and sanitize
				keyStr := fmt.Sprint(key.Interface())
				sanitizedKey := sanitizeAttributeName(keyStr)
				attrName := customAttr.Name + "." + sanitizedKey

				// Get the value
				value := outputValue.MapIndex(key).Interface()

				// Check if value is a nested map or slice - if so, use %v format
				valueReflect := reflect.ValueOf(value)
				if valueReflect.Kind() == reflect.Map || valueReflect.Kind() == reflect.Slice || valueReflect.Kind() == reflect.Array {
					// Nested structure - use default Go format
					attrs = append(attrs, attribute.String(attrName, fmt.Sprintf("%v", value)))
				} else {
					// Simple value - convert to string
					attrs = append(attrs, attribute.String(attrName, fmt.Sprint(value)))
				}
			}
		} else {
			// Not a map - convert output to string attribute as before
			attrValue := fmt.Sprint(output)
			attrs = append(attrs, attribute.String(customAttr.Name, attrValue))
		}
	}

	return attrs, nil
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
// This ensures attribute names are safe for OpenTelemetry.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}

