package eventtype

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mrzor/rawtrace/internal/kbuffer"
)

// ParseFormat parses the contents of an events/<system>/<name>/format file.
func ParseFormat(system string, data []byte) (*Type, error) {
	t := &Type{System: system, ID: -1}
	if err := parseFormatData(t, data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadFormat, system, err)
	}
	if t.Name == "" {
		return nil, fmt.Errorf("%w: %s: missing name", ErrBadFormat, system)
	}
	if t.ID < 0 {
		return nil, fmt.Errorf("%w: %s:%s: missing ID", ErrBadFormat, system, t.Name)
	}
	t.finish()
	return t, nil
}

// ParseHeaderPage parses events/header_page and returns the kernel long
// size, which is the size of the page header commit field.
func ParseHeaderPage(data []byte) (kbuffer.LongSize, error) {
	var t Type
	if err := parseFormatData(&t, data); err != nil {
		return 0, fmt.Errorf("%w: header_page: %w", ErrBadFormat, err)
	}
	commit := t.Field("commit")
	if commit == nil {
		return 0, fmt.Errorf("%w: header_page: no commit field", ErrBadFormat)
	}
	switch ls := kbuffer.LongSize(commit.Size); ls {
	case kbuffer.LongSize4, kbuffer.LongSize8:
		return ls, nil
	default:
		return 0, fmt.Errorf("%w: header_page: commit size %d", ErrBadFormat, commit.Size)
	}
}

func parseFormatData(t *Type, data []byte) error {
	for lineNum, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		colon := strings.IndexRune(line, ':')
		if colon == -1 {
			return fmt.Errorf("missing ':' on line %d", lineNum+1)
		}

		key := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])

		var err error
		switch key {
		case "format":
			continue
		case "name":
			t.Name = value
		case "ID":
			t.ID, err = strconv.Atoi(value)
		case "field":
			var f Field
			f, err = parseField(value)
			if err == nil {
				t.Fields = append(t.Fields, f)
			}
		case "print fmt":
			t.PrintFmt = value
		default:
			err = fmt.Errorf("unexpected key %q", key)
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNum+1, err)
		}
	}
	return nil
}

// parseField takes everything following "field:" on a format line.
func parseField(line string) (Field, error) {
	var field Field

	s := strings.Split(line, ";")
	decl := strings.TrimSpace(s[0])
	lastSpace := strings.LastIndex(decl, " ")
	if lastSpace == -1 {
		return field, errors.New("missing field type and name")
	}
	field.Type = strings.TrimSpace(decl[:lastSpace])
	field.Name = decl[lastSpace+1:]

	if bracket := strings.IndexRune(field.Name, '['); bracket != -1 {
		endBracket := strings.IndexRune(field.Name, ']')
		if endBracket == -1 || endBracket < bracket {
			return field, errors.New("expected ']' after '['")
		}
		field.Array = true
		field.Name = field.Name[:bracket]
	}

	if strings.HasPrefix(field.Type, "__data_loc ") {
		field.Type = strings.TrimPrefix(field.Type, "__data_loc ")
		field.DataLoc = true
		if i := strings.IndexRune(field.Type, '['); i != -1 {
			field.Type = field.Type[:i]
		}
	}

	for _, f := range s[1:] {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		colon := strings.IndexRune(f, ':')
		if colon == -1 {
			return field, fmt.Errorf("missing ':' in field entry %q", f)
		}

		key := strings.TrimSpace(f[:colon])
		value := strings.TrimSpace(f[colon+1:])
		var err error
		switch key {
		case "offset":
			field.Offset, err = strconv.Atoi(value)
		case "size":
			field.Size, err = strconv.Atoi(value)
		case "signed":
			field.Signed, err = strconv.ParseBool(value)
		default:
			err = fmt.Errorf("unknown field entry %q", key)
		}
		if err != nil {
			return field, err
		}
	}

	if field.Offset < 0 {
		return field, errors.New("a negative field offset is not valid")
	}
	if field.Size < 0 {
		return field, errors.New("a negative field size is not valid")
	}
	return field, nil
}
