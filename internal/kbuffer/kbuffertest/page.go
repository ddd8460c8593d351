// Package kbuffertest builds synthetic ring buffer pages for tests.
package kbuffertest

import (
	"encoding/binary"

	"github.com/mrzor/rawtrace/internal/kbuffer"
)

// Page accumulates records and renders them as a ring buffer page.
type Page struct {
	order    binary.ByteOrder
	longSize kbuffer.LongSize
	pageTS   uint64
	last     uint64
	body     []byte
	commit   int
	flags    uint64
	missed   int
}

// NewPage starts a page whose header timestamp is ts.
func NewPage(longSize kbuffer.LongSize, order binary.ByteOrder, ts uint64) *Page {
	return &Page{
		order:    order,
		longSize: longSize,
		pageTS:   ts,
		last:     ts,
		commit:   -1,
	}
}

func (p *Page) word(typeLen, delta uint32) {
	var w uint32
	if p.order.Uint16([]byte{0, 1}) == 1 {
		w = typeLen<<27 | delta&(1<<27-1)
	} else {
		w = typeLen&0x1f | delta<<5
	}
	p.u32(w)
}

func (p *Page) u32(v uint32) {
	var b [4]byte
	p.order.PutUint32(b[:], v)
	p.body = append(p.body, b[:]...)
}

// Event appends a data record with absolute timestamp ts. A time extend
// record is inserted when the delta does not fit the header.
func (p *Page) Event(ts uint64, payload []byte) *Page {
	delta := ts - p.last
	if delta >= 1<<27 {
		p.word(30, uint32(delta&(1<<27-1)))
		p.u32(uint32(delta >> 27))
		delta = 0
	}
	p.last = ts

	n := len(payload)
	if n > 0 && n%4 == 0 && n/4 <= 28 {
		p.word(uint32(n/4), uint32(delta))
		p.body = append(p.body, payload...)
		return p
	}
	p.word(0, uint32(delta))
	p.u32(uint32(n + 4))
	p.body = append(p.body, payload...)
	for pad := (4 - n%4) % 4; pad > 0; pad-- {
		p.body = append(p.body, 0)
	}
	return p
}

// Padding appends a discarded-event padding record of n payload bytes at
// timestamp ts. The stored length counts the length word itself.
func (p *Page) Padding(ts uint64, n int) *Page {
	p.word(29, uint32(ts-p.last))
	p.last = ts
	p.u32(uint32(n + 4))
	p.body = append(p.body, make([]byte, n)...)
	return p
}

// TimeStamp appends an absolute timestamp record.
func (p *Page) TimeStamp(ts uint64) *Page {
	p.word(31, uint32(ts&(1<<27-1)))
	p.u32(uint32(ts >> 27))
	p.last = ts
	return p
}

// Commit overrides the committed size written into the page header.
func (p *Page) Commit(n int) *Page {
	p.commit = n
	return p
}

// Missed marks the page as following dropped events. A negative count
// sets the flag without storing a count.
func (p *Page) Missed(count int) *Page {
	p.flags |= 1 << 31
	if count >= 0 {
		p.flags |= 1 << 30
	}
	p.missed = count
	return p
}

// Len returns the header plus body size of the page.
func (p *Page) Len() int {
	return 8 + int(p.longSize) + len(p.body)
}

// Bytes renders the page, zero filled up to size. A size smaller than the
// rendered page returns the page unpadded.
func (p *Page) Bytes(size int) []byte {
	commit := uint64(len(p.body))
	if p.commit >= 0 {
		commit = uint64(p.commit)
	}
	commit |= p.flags

	capacity := size
	if capacity < p.Len()+8 {
		capacity = p.Len() + 8
	}
	out := make([]byte, 8+int(p.longSize), capacity)
	p.order.PutUint64(out, p.pageTS)
	if p.longSize == kbuffer.LongSize8 {
		p.order.PutUint64(out[8:], commit)
	} else {
		p.order.PutUint32(out[8:], uint32(commit))
	}
	out = append(out, p.body...)
	if p.flags&(1<<30) != 0 {
		var b [8]byte
		if p.longSize == kbuffer.LongSize8 {
			p.order.PutUint64(b[:], uint64(p.missed))
		} else {
			p.order.PutUint32(b[:], uint32(p.missed))
		}
		out = append(out, b[:p.longSize]...)
	}
	for len(out) < size {
		out = append(out, 0)
	}
	return out
}

// Payload builds an event payload starting with a u16 event id followed by
// the given bytes.
func Payload(order binary.ByteOrder, id uint16, rest ...byte) []byte {
	out := make([]byte, 2, 2+len(rest))
	order.PutUint16(out, id)
	return append(out, rest...)
}
