package store

import (
	"fmt"
	"reflect"
	"time"

	json "github.com/goccy/go-json"
)

// Doc is a decoded document body.
type Doc map[string]any

// Snapshot is a document as read at a specific version.
type Snapshot struct {
	Path      string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	raw  []byte
	data Doc
}

// ID returns the last path segment.
func (s *Snapshot) ID() string {
	for i := len(s.Path) - 1; i >= 0; i-- {
		if s.Path[i] == '/' {
			return s.Path[i+1:]
		}
	}
	return s.Path
}

// Data returns a copy of the document body.
func (s *Snapshot) Data() (Doc, error) {
	return decodeDoc(s.raw)
}

// Decode unmarshals the document body into v.
func (s *Snapshot) Decode(v any) error {
	if err := json.Unmarshal(s.raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return nil
}

// Int returns the numeric field as an int64, or 0 if absent or not a number.
func (s *Snapshot) Int(field string) int64 {
	n, _ := toInt64(s.doc()[field])
	return n
}

// String returns the string field, or "" if absent.
func (s *Snapshot) String(field string) string {
	v, _ := s.doc()[field].(string)
	return v
}

// Strings returns the string elements of an array field.
func (s *Snapshot) Strings(field string) []string {
	arr, _ := s.doc()[field].([]any)
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func (s *Snapshot) doc() Doc {
	if s.data == nil {
		d, err := decodeDoc(s.raw)
		if err != nil {
			d = Doc{}
		}
		s.data = d
	}
	return s.data
}

func encodeDoc(d Doc) ([]byte, error) {
	if d == nil {
		d = Doc{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

func decodeDoc(b []byte) (Doc, error) {
	d := Doc{}
	if len(b) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return d, nil
}

// ToDoc converts a struct with json tags into a Doc.
func ToDoc(v any) (Doc, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return decodeDoc(b)
}

type opKind int

const (
	opSet opKind = iota
	opIncrement
	opArrayUnion
	opArrayAppend
)

// FieldOp is a single field mutation applied by Update.
type FieldOp struct {
	Field  string
	kind   opKind
	value  any
	values []any
}

// Set replaces the field value.
func Set(field string, v any) FieldOp {
	return FieldOp{Field: field, kind: opSet, value: v}
}

// Increment adds n to a numeric field. A missing field counts as 0.
func Increment(field string, n int64) FieldOp {
	return FieldOp{Field: field, kind: opIncrement, value: n}
}

// ArrayUnion adds each value not already present in the array field.
// A missing field counts as an empty array.
func ArrayUnion(field string, vals ...any) FieldOp {
	return FieldOp{Field: field, kind: opArrayUnion, values: vals}
}

// ArrayAppend appends values to the array field, keeping duplicates.
func ArrayAppend(field string, vals ...any) FieldOp {
	return FieldOp{Field: field, kind: opArrayAppend, values: vals}
}

func applyOps(d Doc, ops []FieldOp) error {
	for _, op := range ops {
		if op.Field == "" {
			return fmt.Errorf("empty field name: %w", ErrFieldType)
		}
		switch op.kind {
		case opSet:
			d[op.Field] = op.value
		case opIncrement:
			cur, ok := toInt64(d[op.Field])
			if !ok {
				return fmt.Errorf("increment %q: %w", op.Field, ErrFieldType)
			}
			d[op.Field] = cur + op.value.(int64)
		case opArrayUnion, opArrayAppend:
			arr, ok := toSlice(d[op.Field])
			if !ok {
				return fmt.Errorf("array op on %q: %w", op.Field, ErrFieldType)
			}
			for _, v := range op.values {
				if op.kind == opArrayUnion && containsValue(arr, v) {
					continue
				}
				arr = append(arr, v)
			}
			d[op.Field] = arr
		}
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toSlice(v any) ([]any, bool) {
	switch a := v.(type) {
	case nil:
		return nil, true
	case []any:
		return append([]any(nil), a...), true
	case []string:
		out := make([]any, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func containsValue(arr []any, v any) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}
