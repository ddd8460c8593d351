package output

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/rawtrace/internal/attributes"
	"github.com/mrzor/rawtrace/internal/eventprocessor"
)

const passSpanName = "rawtrace.drain"

// OTELFormatter formats samples as OpenTelemetry span events. Each drain of
// the per-CPU buffers gets one span, started at the wall-clock time of its
// first sample and ended at its last.
type OTELFormatter struct {
	tracer    trace.Tracer
	parent    trace.SpanContext
	warnings  []attribute.KeyValue
	evaluator *attributes.Evaluator
	instance  string

	span    trace.Span
	pass    int
	samples int
	last    time.Time
}

// OTELOptions configures an OTELFormatter.
type OTELOptions struct {
	// TraceID places every span in this trace. Zero lets the SDK pick one.
	TraceID trace.TraceID
	// ParentID is the remote parent of every span. Zero with a valid
	// TraceID makes the spans children of a random, unrecorded span id.
	ParentID trace.SpanID
	// Warnings are attached to every span, e.g. from trace id evaluation.
	Warnings []attribute.KeyValue
	// Evaluator supplies custom attributes for each sample event.
	Evaluator *attributes.Evaluator
	// Instance is recorded on every span.
	Instance string
}

// NewOTELFormatter creates a new OTELFormatter.
func NewOTELFormatter(tracer trace.Tracer, opts OTELOptions) *OTELFormatter {
	f := &OTELFormatter{
		tracer:    tracer,
		warnings:  opts.Warnings,
		evaluator: opts.Evaluator,
		instance:  opts.Instance,
	}

	if opts.TraceID.IsValid() {
		parentID := opts.ParentID
		if !parentID.IsValid() {
			parentID = randomSpanID()
		}
		f.parent = trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    opts.TraceID,
			SpanID:     parentID,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})
	}
	return f
}

func randomSpanID() trace.SpanID {
	var id trace.SpanID
	_, _ = rand.Read(id[:]) //nolint:errcheck // crypto/rand.Read never fails on Linux
	return id
}

// HandleSample implements eventprocessor.SampleHandler.
func (f *OTELFormatter) HandleSample(s *eventprocessor.Sample) error {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	if f.span == nil {
		f.startSpan(ts)
	}

	attrs := []attribute.KeyValue{
		attribute.Int("cpu", s.CPU),
		attribute.Int("pid", s.PID),
		attribute.String("comm", s.Comm),
		attribute.String("event.system", s.System),
		attribute.String("event.name", s.Name),
		//nolint:gosec // trace clock values fit an int64
		attribute.Int64("event.timestamp", int64(s.Timestamp)),
	}
	for _, field := range s.Fields {
		attrs = append(attrs, fieldAttribute("field."+field.Name, field.Value))
	}

	if f.evaluator != nil {
		custom, err := f.evaluator.EvaluateCustomAttributes(s)
		if err != nil {
			log.WithError(err).Debug("Failed to evaluate custom attributes")
		}
		attrs = append(attrs, custom...)
	}

	f.span.AddEvent(s.EventName(), trace.WithTimestamp(ts), trace.WithAttributes(attrs...))
	f.samples++
	f.last = ts
	return nil
}

func (f *OTELFormatter) startSpan(start time.Time) {
	ctx := context.Background()
	if f.parent.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, f.parent)
	}

	_, span := f.tracer.Start(ctx, passSpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(start),
	)
	span.SetAttributes(attribute.Int("rawtrace.pass", f.pass))
	if f.instance != "" {
		span.SetAttributes(attribute.String("rawtrace.instance", f.instance))
	}
	if len(f.warnings) > 0 {
		span.SetAttributes(f.warnings...)
	}
	f.span = span
}

// EndPass ends the span of the current drain, if any sample was seen.
func (f *OTELFormatter) EndPass() {
	if f.span == nil {
		return
	}
	f.span.SetAttributes(attribute.Int("rawtrace.samples", f.samples))
	f.span.End(trace.WithTimestamp(f.last))

	f.span = nil
	f.samples = 0
	f.pass++
}

func fieldAttribute(key string, v any) attribute.KeyValue {
	switch v := v.(type) {
	case int64:
		return attribute.Int64(key, v)
	case uint64:
		if v > math.MaxInt64 {
			return attribute.String(key, fmt.Sprintf("%#x", v))
		}
		return attribute.Int64(key, int64(v))
	case string:
		return attribute.String(key, v)
	case []byte:
		return attribute.String(key, hex.EncodeToString(v))
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}

