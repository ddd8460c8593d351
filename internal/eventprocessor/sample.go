package eventprocessor

import "time"

// FieldValue is one decoded payload field.
type FieldValue struct {
	Name  string
	Value any
}

// Sample is an owned, decoded copy of one delivered trace record. It stays
// valid after the record's page has been reused.
type Sample struct {
	CPU       int
	Timestamp uint64    // trace clock
	Time      time.Time // wall clock, zero for counter clocks
	System    string
	Name      string
	PID       int
	Comm      string
	Fields    []FieldValue
}

// Field returns the decoded value of the named field and whether it exists.
func (s *Sample) Field(name string) (any, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// FieldMap returns the decoded fields keyed by name.
func (s *Sample) FieldMap() map[string]any {
	m := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Name] = f.Value
	}
	return m
}

// EventName returns "system:name".
func (s *Sample) EventName() string {
	return s.System + ":" + s.Name
}
