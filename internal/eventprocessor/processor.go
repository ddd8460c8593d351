package eventprocessor

import (
	"encoding/binary"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mrzor/rawtrace/internal/eventstream"
	"github.com/mrzor/rawtrace/internal/eventtype"
	"github.com/mrzor/rawtrace/internal/procmeta"
	"github.com/mrzor/rawtrace/internal/timesync"
)

// SampleHandler receives every accepted sample, in timestamp order.
type SampleHandler interface {
	HandleSample(s *Sample) error
}

// Filter decides whether a sample is passed on to the handlers.
type Filter interface {
	Match(s *Sample) (bool, error)
}

// commFields lists (pid field, comm field) pairs that announce a task name.
var commFields = [][2]string{
	{"prev_pid", "prev_comm"},
	{"next_pid", "next_comm"},
	{"pid", "comm"},
	{"pid", "newcomm"},
	{"child_pid", "child_comm"},
}

// Processor turns deliveries from eventstream.IterateRawEvents into samples.
// It learns task names from scheduler events as they go by.
type Processor struct {
	order     binary.ByteOrder
	tasks     *procmeta.Manager
	clock     *timesync.Converter
	filter    Filter
	handlers  []SampleHandler
	maxEvents int
	accepted  int
}

// Option configures a Processor.
type Option func(*Processor)

// WithFilter drops samples for which f does not match.
func WithFilter(f Filter) Option {
	return func(p *Processor) { p.filter = f }
}

// WithMaxEvents makes Handle request a stop once n samples were accepted.
// Zero means no limit.
func WithMaxEvents(n int) Option {
	return func(p *Processor) { p.maxEvents = n }
}

// NewProcessor creates a processor decoding payloads in the given byte order.
func NewProcessor(
	order binary.ByteOrder,
	tasks *procmeta.Manager,
	clock *timesync.Converter,
	handlers []SampleHandler,
	opts ...Option,
) *Processor {
	p := &Processor{
		order:    order,
		tasks:    tasks,
		clock:    clock,
		handlers: handlers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ eventstream.Handler = (&Processor{}).Handle

// Handle is an eventstream.Handler.
func (p *Processor) Handle(ev *eventtype.Type, rec *eventstream.Record, cpu int) bool {
	s := p.decode(ev, rec, cpu)
	if p.tasks != nil {
		p.learn(s)
		if s.PID >= 0 {
			s.Comm = p.tasks.Comm(s.PID)
		}
	}

	if p.filter != nil {
		ok, err := p.filter.Match(s)
		if err != nil {
			log.WithError(err).WithField("event", s.EventName()).Debug("Filter evaluation failed")
			return false
		}
		if !ok {
			return false
		}
	}

	p.accepted++
	for _, h := range p.handlers {
		if err := h.HandleSample(s); err != nil {
			log.WithError(err).WithField("event", s.EventName()).Warn("Sample handler failed")
		}
	}
	return p.maxEvents > 0 && p.accepted >= p.maxEvents
}

// Accepted returns the number of samples passed to the handlers so far.
func (p *Processor) Accepted() int {
	return p.accepted
}

func (p *Processor) decode(ev *eventtype.Type, rec *eventstream.Record, cpu int) *Sample {
	s := &Sample{
		CPU:       cpu,
		Timestamp: rec.Timestamp,
		System:    ev.System,
		Name:      ev.Name,
		PID:       -1,
	}
	if p.clock != nil {
		s.Time = p.clock.WallClock(rec.Timestamp)
	}

	for i := range ev.Fields {
		f := &ev.Fields[i]
		if f.Name == "common_pid" {
			if pid, err := f.Int(p.order, rec.Data); err == nil {
				s.PID = int(pid)
			}
			continue
		}
		if strings.HasPrefix(f.Name, "common_") {
			continue
		}
		v, err := f.Value(p.order, rec.Data)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"event": ev.String(),
				"field": f.Name,
			}).Debug("Failed to decode field")
			continue
		}
		s.Fields = append(s.Fields, FieldValue{Name: f.Name, Value: v})
	}
	return s
}

// learn records task names carried in the sample's own fields.
func (p *Processor) learn(s *Sample) {
	if s.System != "sched" && s.System != "task" {
		return
	}
	if s.Name == "sched_process_free" {
		if pid, ok := s.Field("pid"); ok {
			if pid, ok := pid.(int64); ok {
				p.tasks.Delete(int(pid))
			}
		}
		return
	}
	for _, pair := range commFields {
		pidVal, ok := s.Field(pair[0])
		if !ok {
			continue
		}
		commVal, ok := s.Field(pair[1])
		if !ok {
			continue
		}
		pid, ok := pidVal.(int64)
		if !ok {
			continue
		}
		comm, ok := commVal.(string)
		if !ok {
			continue
		}
		p.tasks.SetComm(int(pid), comm, procmeta.SourceEvent)
	}
}
