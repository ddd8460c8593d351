package attributes

import (
	"os"
	"strings"

	"github.com/mrzor/rawtrace/internal/eventprocessor"
)

// sampleEnvTemplate declares the variables available to per-sample
// expressions, for type checking at compile time.
func sampleEnvTemplate() map[string]any {
	return map[string]any{
		"cpu":    0,
		"ts":     uint64(0),
		"pid":    0,
		"comm":   "",
		"system": "",
		"event":  "",
		"fields": map[string]any{},
	}
}

// SampleEnv builds the expression environment for one sample.
func SampleEnv(s *eventprocessor.Sample) map[string]any {
	return map[string]any{
		"cpu":    s.CPU,
		"ts":     s.Timestamp,
		"pid":    s.PID,
		"comm":   s.Comm,
		"system": s.System,
		"event":  s.Name,
		"fields": s.FieldMap(),
	}
}

// RunContext describes the tracing run itself. Trace and parent id
// expressions are evaluated against it once, before any sample is read.
type RunContext struct {
	Environ  map[string]string
	Args     []string
	Hostname string
	Instance string
}

// CurrentRun returns the context of the running process.
func CurrentRun(instance string) *RunContext {
	hostname, _ := os.Hostname() //nolint:errcheck // an empty hostname is acceptable
	return &RunContext{
		Environ:  parseEnviron(os.Environ()),
		Args:     os.Args,
		Hostname: hostname,
		Instance: instance,
	}
}

func runEnvTemplate() map[string]any {
	return map[string]any{
		"env":      map[string]string{},
		"args":     []string{},
		"hostname": "",
		"instance": "",
	}
}

func (r *RunContext) env() map[string]any {
	return map[string]any{
		"env":      r.Environ,
		"args":     r.Args,
		"hostname": r.Hostname,
		"instance": r.Instance,
	}
}

// parseEnviron converts KEY=VALUE strings into a map. Later duplicates win.
func parseEnviron(environ []string) map[string]string {
	result := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		result[key] = value
	}
	return result
}
