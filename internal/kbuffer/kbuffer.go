package kbuffer

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// LongSize is the size in bytes of a kernel long on the traced machine.
type LongSize int

const (
	LongSize4 LongSize = 4
	LongSize8 LongSize = 8
)

// Record header type_len values with special meaning. 1..28 encode the
// payload length in 4 byte words.
const (
	typeDataMax    = 28
	typePadding    = 29
	typeTimeExtend = 30
	typeTimeStamp  = 31
)

const (
	typeLenBits = 5
	tsShift     = 27
	deltaMask   = (1 << tsShift) - 1
	typeLenMask = (1 << typeLenBits) - 1

	commitMask    = (1 << 27) - 1
	missingEvents = 1 << 31
	missingStored = 1 << 30
)

// ErrLongSize is returned by New for long sizes other than 4 and 8.
var ErrLongSize = errors.New("kbuffer: long size must be 4 or 8")

// ErrShortPage is returned by Load when the page cannot hold a page header.
var ErrShortPage = errors.New("kbuffer: page shorter than page header")

// Buffer is a cursor over one loaded ring buffer page.
//
// Slices returned by Read point into the page passed to Load and are only
// valid until the next Load.
type Buffer struct {
	order     binary.ByteOrder
	bigEndian bool
	longSize  LongSize
	start     int

	data      []byte
	size      int
	pageTS    uint64
	timestamp uint64
	missed    int

	// curr is the offset of the current record header, index the offset of
	// its payload and next the offset of the following record header.
	curr  int
	index int
	next  int
}

// New creates a Buffer decoding pages written with the given long size and
// byte order.
func New(longSize LongSize, order binary.ByteOrder) (*Buffer, error) {
	if longSize != LongSize4 && longSize != LongSize8 {
		return nil, fmt.Errorf("%w: got %d", ErrLongSize, longSize)
	}
	if order == nil {
		return nil, errors.New("kbuffer: nil byte order")
	}
	b := &Buffer{
		order:     order,
		bigEndian: order.Uint16([]byte{0, 1}) == 1,
		longSize:  longSize,
		start:     8 + int(longSize),
	}
	return b, nil
}

// Load points the buffer at a new page and positions it on the first record.
func (b *Buffer) Load(page []byte) error {
	if len(page) < b.start {
		return ErrShortPage
	}

	b.pageTS = b.order.Uint64(page)
	var commit uint64
	if b.longSize == LongSize8 {
		commit = b.order.Uint64(page[8:])
	} else {
		commit = uint64(b.order.Uint32(page[8:]))
	}
	b.size = int(commit & commitMask)

	end := b.start + b.size
	if end > len(page) {
		end = len(page)
	}
	b.data = page[b.start:end]

	b.missed = 0
	if commit&missingEvents != 0 {
		b.missed = -1
		if commit&missingStored != 0 && b.start+b.size+int(b.longSize) <= len(page) {
			stored := page[b.start+b.size:]
			if b.longSize == LongSize8 {
				b.missed = int(b.order.Uint64(stored))
			} else {
				b.missed = int(b.order.Uint32(stored))
			}
		}
	}

	b.timestamp = b.pageTS
	b.curr, b.index, b.next = 0, 0, 0
	b.advance()
	return nil
}

// SubbufferSize returns the number of page bytes the loaded page claims to
// use: the page header plus the committed data.
func (b *Buffer) SubbufferSize() int {
	return b.start + b.size
}

// Timestamp returns the page timestamp of the loaded page.
func (b *Buffer) Timestamp() uint64 {
	return b.pageTS
}

// MissedEvents returns the number of events the kernel dropped before the
// loaded page: 0 if none, -1 if some were dropped but the count is unknown.
func (b *Buffer) MissedEvents() int {
	return b.missed
}

// Read returns the payload and timestamp of the current record. ok is false
// once the page is exhausted.
func (b *Buffer) Read() (data []byte, ts uint64, ok bool) {
	if b.curr >= b.size {
		return nil, 0, false
	}
	return b.data[b.index:b.next], b.timestamp, true
}

// EventSize returns the payload length of the current record.
func (b *Buffer) EventSize() int {
	if b.curr >= b.size {
		return 0
	}
	return b.next - b.index
}

// CurrSize returns the bytes the current record occupies in the page,
// header included.
func (b *Buffer) CurrSize() int {
	if b.curr >= b.size {
		return 0
	}
	return b.next - b.curr
}

// Next moves to the following data record.
func (b *Buffer) Next() {
	b.advance()
}

// advance skips forward to the next data record, consuming padding and
// timestamp records on the way.
func (b *Buffer) advance() {
	for {
		b.curr = b.next
		if b.curr >= b.size {
			return
		}
		typeLen, ok := b.translate()
		if !ok {
			// A record running past the committed data ends the page.
			b.curr, b.next = b.size, b.size
			return
		}
		switch typeLen {
		case typePadding, typeTimeExtend, typeTimeStamp:
			continue
		}
		return
	}
}

func (b *Buffer) translate() (uint32, bool) {
	p := b.curr
	word, ok := b.read4(p)
	if !ok {
		return 0, false
	}
	p += 4

	var typeLen uint32
	var delta uint64
	if b.bigEndian {
		typeLen = word >> tsShift
		delta = uint64(word & deltaMask)
	} else {
		typeLen = word & typeLenMask
		delta = uint64(word >> typeLenBits)
	}

	var length int
	switch typeLen {
	case typePadding:
		l, ok := b.read4(p)
		if !ok || uint64(l) > uint64(len(b.data)-p) {
			return 0, false
		}
		length = int(l)
	case typeTimeExtend, typeTimeStamp:
		ext, ok := b.read4(p)
		if !ok {
			return 0, false
		}
		p += 4
		delta += uint64(ext) << tsShift
	case 0:
		l, ok := b.read4(p)
		if !ok || l < 4 {
			return 0, false
		}
		p += 4
		if uint64(l-4) > uint64(len(b.data)-p) {
			return 0, false
		}
		length = (int(l) - 4 + 3) &^ 3
	default:
		length = int(typeLen) * 4
	}

	if typeLen == typeTimeStamp {
		b.timestamp = delta
	} else {
		b.timestamp += delta
	}

	b.index = p
	b.next = p + length
	if b.next < b.index || typeLen <= typeDataMax && b.next > len(b.data) {
		return 0, false
	}
	return typeLen, true
}

func (b *Buffer) read4(off int) (uint32, bool) {
	if off < 0 || off+4 > len(b.data) {
		return 0, false
	}
	return b.order.Uint32(b.data[off:]), true
}
