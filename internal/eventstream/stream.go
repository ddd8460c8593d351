package eventstream

import (
	"errors"
	"io"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mrzor/rawtrace/internal/eventtype"
	"github.com/mrzor/rawtrace/internal/kbuffer"
)

// stream is the reading state of one CPU: its source, the page buffer
// reused for every read, the decoder over that page and at most one
// pending record.
type stream struct {
	cpu  int
	src  Source
	page []byte
	kbuf *kbuffer.Buffer // created on the first page read

	// rec is pending while event is non-nil. rec.Data points into page.
	rec   Record
	event *eventtype.Type

	exhausted bool
}

// loadPage reads the next page from the source into the page buffer. It
// returns false when no page is available or the stream must stop.
func (s *stream) loadPage(reg Registry) bool {
	n, err := s.src.Read(s.page)
	if n <= 0 {
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, unix.EAGAIN) {
			log.WithField("cpu", s.cpu).Debugf("Reading raw page: %v", err)
		}
		return false
	}

	if s.kbuf == nil {
		kbuf, err := newDecoder(kbuffer.LongSize(reg.LongSize()), reg.ByteOrder())
		if err != nil {
			log.WithField("cpu", s.cpu).WithError(err).Errorf("Abandoning CPU: %v", ErrAllocation)
			return false
		}
		s.kbuf = kbuf
	}

	if err := s.kbuf.Load(s.page[:n]); err != nil {
		log.WithField("cpu", s.cpu).Warnf("Corrupt page: %v", err)
		return false
	}
	if size := s.kbuf.SubbufferSize(); size > n {
		log.WithFields(log.Fields{
			"cpu":            s.cpu,
			"subbuffer_size": size,
			"bytes_read":     n,
		}).Warn("Corrupt page: sub-buffer larger than the bytes read")
		return false
	}
	if missed := s.kbuf.MissedEvents(); missed != 0 {
		log.WithFields(log.Fields{"cpu": s.cpu, "missed": missed}).Debug("Kernel dropped events before page")
	}
	return true
}

// readRecord moves the next decoded record of the current page into rec.
func (s *stream) readRecord() bool {
	if s.kbuf == nil {
		return false
	}
	data, ts, ok := s.kbuf.Read()
	if !ok {
		return false
	}
	s.rec = Record{
		Timestamp:  ts,
		Data:       data,
		Size:       s.kbuf.EventSize(),
		RecordSize: s.kbuf.CurrSize(),
		CPU:        s.cpu,
	}
	s.kbuf.Next()
	return true
}

// refill makes the next record with a registered event type pending. Once
// no page is available the stream is exhausted and stays so for the rest
// of the run.
func (s *stream) refill(reg Registry) bool {
	s.event = nil
	if s.exhausted {
		return false
	}
	for {
		for s.readRecord() {
			if ev := reg.Type(reg.EventID(s.rec.Data)); ev != nil {
				s.event = ev
				return true
			}
		}
		if !s.loadPage(reg) {
			s.exhausted = true
			s.rec = Record{}
			return false
		}
	}
}

func (s *stream) close() {
	if s.src != nil {
		if err := s.src.Close(); err != nil {
			log.WithField("cpu", s.cpu).Debugf("Closing raw source: %v", err)
		}
		s.src = nil
	}
	s.page = nil
	s.kbuf = nil
	s.event = nil
	s.rec = Record{}
}
