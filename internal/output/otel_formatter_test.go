package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/rawtrace/internal/attributes"
	"github.com/mrzor/rawtrace/internal/config"
	"github.com/mrzor/rawtrace/internal/eventprocessor"
)

var base = time.Unix(1_700_000_000, 0)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, trace.Tracer) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("rawtrace-test")
}

func sample(cpu int, offset time.Duration, name string) *eventprocessor.Sample {
	return &eventprocessor.Sample{
		CPU:       cpu,
		Timestamp: uint64(offset),
		Time:      base.Add(offset),
		System:    "sched",
		Name:      name,
		PID:       7,
		Comm:      "worker",
		Fields: []eventprocessor.FieldValue{
			{Name: "prio", Value: int64(120)},
			{Name: "state", Value: uint64(1 << 63)},
			{Name: "mask", Value: []byte{1, 2}},
		},
	}
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestOTELFormatter_OneSpanPerPass(t *testing.T) {
	sr, tracer := newRecorder(t)
	f := NewOTELFormatter(tracer, OTELOptions{Instance: "sched"})

	require.NoError(t, f.HandleSample(sample(0, time.Second, "sched_wakeup")))
	require.NoError(t, f.HandleSample(sample(1, 2*time.Second, "sched_switch")))
	assert.Empty(t, sr.Ended(), "span stays open until the pass ends")
	f.EndPass()

	require.NoError(t, f.HandleSample(sample(0, 5*time.Second, "sched_switch")))
	f.EndPass()
	f.EndPass() // no samples, no span

	spans := sr.Ended()
	require.Len(t, spans, 2)

	first := spans[0]
	assert.Equal(t, passSpanName, first.Name())
	assert.Equal(t, base.Add(time.Second), first.StartTime())
	assert.Equal(t, base.Add(2*time.Second), first.EndTime())
	attrs := attrMap(first.Attributes())
	assert.Equal(t, int64(0), attrs["rawtrace.pass"].AsInt64())
	assert.Equal(t, int64(2), attrs["rawtrace.samples"].AsInt64())
	assert.Equal(t, "sched", attrs["rawtrace.instance"].AsString())

	events := first.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "sched:sched_wakeup", events[0].Name)
	assert.Equal(t, base.Add(time.Second), events[0].Time)
	ev := attrMap(events[1].Attributes)
	assert.Equal(t, int64(1), ev["cpu"].AsInt64())
	assert.Equal(t, int64(7), ev["pid"].AsInt64())
	assert.Equal(t, "worker", ev["comm"].AsString())
	assert.Equal(t, "sched", ev["event.system"].AsString())
	assert.Equal(t, "sched_switch", ev["event.name"].AsString())
	assert.Equal(t, int64(2*time.Second), ev["event.timestamp"].AsInt64())
	assert.Equal(t, int64(120), ev["field.prio"].AsInt64())
	assert.Equal(t, "0x8000000000000000", ev["field.state"].AsString())
	assert.Equal(t, "0102", ev["field.mask"].AsString())

	second := spans[1]
	assert.Equal(t, int64(1), attrMap(second.Attributes())["rawtrace.pass"].AsInt64())
	assert.Len(t, second.Events(), 1)
}

func TestOTELFormatter_RemoteParent(t *testing.T) {
	sr, tracer := newRecorder(t)
	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	parentID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)

	warning := attribute.String("_trace_id_invalid_warning", "hashed")
	f := NewOTELFormatter(tracer, OTELOptions{TraceID: traceID, ParentID: parentID, Warnings: []attribute.KeyValue{warning}})
	require.NoError(t, f.HandleSample(sample(0, time.Second, "sched_switch")))
	f.EndPass()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, traceID, spans[0].SpanContext().TraceID())
	assert.Equal(t, parentID, spans[0].Parent().SpanID())
	assert.True(t, spans[0].Parent().IsRemote())
	assert.Equal(t, "hashed", attrMap(spans[0].Attributes())["_trace_id_invalid_warning"].AsString())
}

func TestOTELFormatter_TraceIDWithoutParent(t *testing.T) {
	sr, tracer := newRecorder(t)
	traceID, err := trace.TraceIDFromHex("a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4")
	require.NoError(t, err)

	f := NewOTELFormatter(tracer, OTELOptions{TraceID: traceID})
	require.NoError(t, f.HandleSample(sample(0, time.Second, "sched_switch")))
	f.EndPass()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, traceID, spans[0].SpanContext().TraceID())
	assert.True(t, spans[0].Parent().SpanID().IsValid())
}

func TestOTELFormatter_CustomAttributes(t *testing.T) {
	sr, tracer := newRecorder(t)
	evaluator, err := attributes.NewEvaluator([]config.CustomAttribute{
		{Name: "task", Expression: `comm + "/" + string(pid)`},
	})
	require.NoError(t, err)

	f := NewOTELFormatter(tracer, OTELOptions{Evaluator: evaluator})
	require.NoError(t, f.HandleSample(sample(3, time.Second, "sched_switch")))
	f.EndPass()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "worker/7", attrMap(spans[0].Events()[0].Attributes)["task"].AsString())
}

func TestOTELFormatter_CounterClock(t *testing.T) {
	sr, tracer := newRecorder(t)
	f := NewOTELFormatter(tracer, OTELOptions{})

	s := sample(0, time.Second, "sched_switch")
	s.Time = time.Time{}
	before := time.Now()
	require.NoError(t, f.HandleSample(s))
	f.EndPass()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.False(t, spans[0].StartTime().Before(before), "samples without wall time use the current time")
}
