package eventstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mrzor/rawtrace/internal/eventtype"
	"github.com/mrzor/rawtrace/internal/kbuffer"
	"github.com/mrzor/rawtrace/internal/tracefs"
)

var (
	// ErrInvalidArgument is returned when the registry or handler is missing.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDiscovery is returned when the per-CPU buffer directory cannot be read.
	ErrDiscovery = errors.New("per-CPU trace buffers unavailable")
	// ErrAllocation is returned when a page buffer cannot be allocated.
	ErrAllocation = errors.New("allocation failed")
)

// Overridable for the test suite.
var (
	newPageBuffer = func(size int) ([]byte, error) {
		return make([]byte, size), nil
	}
	newDecoder = kbuffer.New
)

// Record is one raw trace record. Data points into the page buffer of the
// CPU it was read from and is only valid during the Handler call.
type Record struct {
	Timestamp  uint64
	Data       []byte
	Size       int // payload length
	RecordSize int // bytes used in the page, header included
	CPU        int
}

// Handler receives records in timestamp order. Returning true stops the
// iteration; the rest of the current page of that CPU is dropped.
type Handler func(ev *eventtype.Type, rec *Record, cpu int) (stop bool)

// Registry classifies raw records and fixes the page layout for the run.
type Registry interface {
	EventID(data []byte) int
	Type(id int) *eventtype.Type
	ByteOrder() binary.ByteOrder
	LongSize() int
}

// Options selects what IterateRawEvents reads. The zero value reads every
// CPU of the top level tracing directory.
type Options struct {
	// Instance is the root directory of the tracing instance to read.
	// Empty means the mounted tracefs root.
	Instance string
	// CPUs restricts the CPUs read. Nil means all; an empty set means none.
	CPUs *unix.CPUSet
	// PageSize is the read size per page. Zero means the system page size.
	PageSize int
	// Open opens a per-CPU trace_pipe_raw file. Nil means OpenRaw.
	Open func(path string) (Source, error)
}

// IterateRawEvents reads every per-CPU ring buffer of an instance and calls
// fn for each record whose event id is registered, in timestamp order
// across CPUs. Records with equal timestamps are delivered in ascending CPU
// order.
//
// Only the data available when a CPU is read is seen: a CPU with nothing
// left to read is not polled again during the call. A CPU whose source
// cannot be opened or that yields a corrupt page is skipped and logged.
func IterateRawEvents(reg Registry, opts *Options, fn Handler) error {
	if reg == nil || fn == nil {
		return ErrInvalidArgument
	}
	if r, ok := reg.(*eventtype.Registry); ok && r == nil {
		return ErrInvalidArgument
	}
	if opts == nil {
		opts = &Options{}
	}

	root := opts.Instance
	if root == "" {
		dir, err := tracefs.TracingDir()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDiscovery, err)
		}
		root = dir
	}

	streams, err := discover(root, opts)
	if err != nil {
		return err
	}
	defer closeStreams(streams)

	delivered := merge(streams, reg, fn)
	log.WithFields(log.Fields{
		"cpus":      len(streams),
		"delivered": delivered,
	}).Debug("Raw event iteration done")
	return nil
}

// discover opens the trace_pipe_raw file of every selected CPU under
// root/per_cpu and allocates its page buffer. Streams are returned in
// ascending CPU order.
func discover(root string, opts *Options) ([]*stream, error) {
	perCPU := filepath.Join(root, "per_cpu")
	entries, err := os.ReadDir(perCPU)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	type cpuDir struct {
		cpu  int
		name string
	}
	var dirs []cpuDir
	for _, e := range entries {
		name := e.Name()
		if len(name) < 4 || !strings.HasPrefix(name, "cpu") {
			continue
		}
		cpu, err := strconv.Atoi(name[3:])
		if err != nil || cpu < 0 {
			continue
		}
		if opts.CPUs != nil && !opts.CPUs.IsSet(cpu) {
			continue
		}
		dirs = append(dirs, cpuDir{cpu: cpu, name: name})
	}
	slices.SortFunc(dirs, func(a, b cpuDir) int { return a.cpu - b.cpu })

	open := opts.Open
	if open == nil {
		open = OpenRaw
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = unix.Getpagesize()
	}

	streams := make([]*stream, 0, len(dirs))
	for _, d := range dirs {
		dir := filepath.Join(perCPU, d.name)
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			continue
		}

		path := filepath.Join(dir, "trace_pipe_raw")
		src, err := open(path)
		if err != nil {
			log.WithFields(log.Fields{"cpu": d.cpu, "path": path}).WithError(err).Debug("Skipping CPU")
			continue
		}
		s := &stream{cpu: d.cpu, src: src}
		streams = append(streams, s)

		page, err := newPageBuffer(pageSize)
		if err != nil {
			closeStreams(streams)
			return nil, fmt.Errorf("%w: page buffer for cpu %d: %w", ErrAllocation, d.cpu, err)
		}
		s.page = page
	}
	return streams, nil
}

// merge primes every stream and then repeatedly hands the pending record
// with the smallest timestamp to fn, refilling only the stream it came
// from. It returns the number of delivered records.
func merge(streams []*stream, reg Registry, fn Handler) int {
	for _, s := range streams {
		s.refill(reg)
	}

	delivered := 0
	for {
		var next *stream
		for _, s := range streams {
			if s.event == nil {
				continue
			}
			// Strictly greater: on equal timestamps the earlier stream wins.
			if next == nil || next.rec.Timestamp > s.rec.Timestamp {
				next = s
			}
		}
		if next == nil {
			return delivered
		}

		delivered++
		if fn(next.event, &next.rec, next.cpu) {
			return delivered
		}
		next.refill(reg)
	}
}

func closeStreams(streams []*stream) {
	for _, s := range streams {
		s.close()
	}
}
