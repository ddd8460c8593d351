package output

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mrzor/rawtrace/internal/eventprocessor"
)

// TextFormatter writes samples as trace-like text lines:
//
//	bash-4242  [002] 1234.567890: sched_switch: prev_comm=bash prev_pid=4242 ...
type TextFormatter struct {
	w   *bufio.Writer
	buf strings.Builder
}

// NewTextFormatter creates a formatter writing to w. Output is buffered
// until Flush.
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{w: bufio.NewWriter(w)}
}

// HandleSample implements eventprocessor.SampleHandler.
func (f *TextFormatter) HandleSample(s *eventprocessor.Sample) error {
	f.buf.Reset()
	fmt.Fprintf(&f.buf, "%16s-%-7d [%03d] %d.%06d: %s:",
		s.Comm, s.PID, s.CPU,
		s.Timestamp/1_000_000_000, s.Timestamp%1_000_000_000/1000,
		s.Name)
	for _, field := range s.Fields {
		f.buf.WriteByte(' ')
		f.buf.WriteString(field.Name)
		f.buf.WriteByte('=')
		f.buf.WriteString(formatValue(field.Value))
	}
	f.buf.WriteByte('\n')

	_, err := f.w.WriteString(f.buf.String())
	return err
}

// Flush writes any buffered lines.
func (f *TextFormatter) Flush() error {
	return f.w.Flush()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case []byte:
		return fmt.Sprintf("%x", v)
	case string:
		if v == "" || strings.ContainsAny(v, " \t") {
			return fmt.Sprintf("%q", v)
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}
