package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidID is returned when a JSON value is neither an integer nor a string
var ErrInvalidID = errors.New("identifier must be an integer or a string")

type idKind uint8

const (
	idNone idKind = iota
	idInt
	idString
)

// ID identifies a conversation or a user. Clients send either JSON numbers or
// strings; both forms are kept as-is so Int(42) and String("42") never compare equal.
// The zero value is the absent identifier.
type ID struct {
	kind idKind
	num  int64
	str  string
}

// IntID builds a numeric identifier
func IntID(n int64) ID {
	return ID{kind: idInt, num: n}
}

// StringID builds a string identifier
func StringID(s string) ID {
	return ID{kind: idString, str: s}
}

// ParseID decodes a raw JSON value into an ID
func ParseID(raw json.RawMessage) (ID, error) {
	var id ID
	if err := id.UnmarshalJSON(raw); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Valid reports whether the identifier is present and usable as a key.
// The empty string is treated like an absent value; the number 0 is a valid id.
func (id ID) Valid() bool {
	switch id.kind {
	case idInt:
		return true
	case idString:
		return id.str != ""
	default:
		return false
	}
}

func (id ID) String() string {
	switch id.kind {
	case idInt:
		return strconv.FormatInt(id.num, 10)
	case idString:
		return id.str
	default:
		return ""
	}
}

// GoString keeps log output unambiguous between 42 and "42"
func (id ID) GoString() string {
	switch id.kind {
	case idInt:
		return strconv.FormatInt(id.num, 10)
	case idString:
		return strconv.Quote(id.str)
	default:
		return "<none>"
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idInt:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	case idString:
		return json.Marshal(id.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts integral numbers and strings. null and an empty input
// leave the ID absent; any other JSON value is rejected with ErrInvalidID.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidID, err)
		}
		*id = StringID(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			// 1e3 and 42.0 are integral in JSON terms
			f, ferr := strconv.ParseFloat(string(data), 64)
			if ferr != nil || f != float64(int64(f)) {
				return fmt.Errorf("%w: %s is not an integer", ErrInvalidID, data)
			}
			n = int64(f)
		}
		*id = IntID(n)
		return nil
	default:
		return fmt.Errorf("%w: got %s", ErrInvalidID, data)
	}
}
