// Package eventtype describes ftrace event types and maps event ids found in
// raw records to their descriptors.
package eventtype

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBadFormat is returned when a format description cannot be parsed.
	ErrBadFormat = errors.New("bad event format")
	// ErrDuplicateID is returned by Registry.Add for an id already registered.
	ErrDuplicateID = errors.New("duplicate event id")
	// ErrShortData is returned when a payload is too small for a field.
	ErrShortData = errors.New("payload too short for field")
)

// Field is one member of an event payload as declared by its format file.
type Field struct {
	Name    string
	Type    string
	Offset  int
	Size    int
	Signed  bool
	Array   bool
	DataLoc bool // __data_loc: the field holds a u32 (length<<16 | offset) locator
}

// Type describes one event: where it lives in tracefs and how its payload is laid out.
type Type struct {
	ID       int
	System   string
	Name     string
	Fields   []Field
	PrintFmt string

	size int // minimal payload size covering every fixed field
}

// Field returns the field with the given name, or nil.
func (t *Type) Field(name string) *Field {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// String returns "system:name".
func (t *Type) String() string {
	return t.System + ":" + t.Name
}

// Size returns the smallest payload size that holds every fixed field.
func (t *Type) Size() int {
	return t.size
}

func (t *Type) finish() {
	t.size = 0
	for _, f := range t.Fields {
		if t.size < f.Offset+f.Size {
			t.size = f.Offset + f.Size
		}
	}
}

func (f *Field) bytes(data []byte) ([]byte, error) {
	if f.Offset < 0 || f.Offset+f.Size > len(data) {
		return nil, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortData, f.Name, f.Offset+f.Size, len(data))
	}
	return data[f.Offset : f.Offset+f.Size], nil
}

// Uint decodes the field as an unsigned integer.
func (f *Field) Uint(order binary.ByteOrder, data []byte) (uint64, error) {
	b, err := f.bytes(data)
	if err != nil {
		return 0, err
	}
	switch f.Size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(order.Uint16(b)), nil
	case 4:
		return uint64(order.Uint32(b)), nil
	case 8:
		return order.Uint64(b), nil
	default:
		return 0, fmt.Errorf("field %s: unsupported integer size %d", f.Name, f.Size)
	}
}

// Int decodes the field as a signed integer.
func (f *Field) Int(order binary.ByteOrder, data []byte) (int64, error) {
	b, err := f.bytes(data)
	if err != nil {
		return 0, err
	}
	switch f.Size {
	case 1:
		return int64(int8(b[0])), nil
	case 2:
		return int64(int16(order.Uint16(b))), nil
	case 4:
		return int64(int32(order.Uint32(b))), nil
	case 8:
		return int64(order.Uint64(b)), nil
	default:
		return 0, fmt.Errorf("field %s: unsupported integer size %d", f.Name, f.Size)
	}
}

// Value decodes the field into a Go value: string for char arrays and
// __data_loc strings, []byte for other arrays, int64 or uint64 otherwise.
func (f *Field) Value(order binary.ByteOrder, data []byte) (any, error) {
	if f.DataLoc {
		loc, err := f.Uint(order, data)
		if err != nil {
			return nil, err
		}
		off, n := int(loc&0xffff), int(loc>>16)
		if off+n > len(data) {
			return nil, fmt.Errorf("%w: %s locator %d+%d past %d", ErrShortData, f.Name, off, n, len(data))
		}
		return cString(data[off : off+n]), nil
	}

	if f.Array {
		b, err := f.bytes(data)
		if err != nil {
			return nil, err
		}
		if f.Type == "char" {
			return cString(b), nil
		}
		return append([]byte(nil), b...), nil
	}

	if f.Signed {
		return f.Int(order, data)
	}
	return f.Uint(order, data)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
