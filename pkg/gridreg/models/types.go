package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// MemberList is the ordered descriptor sequence of a group entry, stored as a
// JSON array in a text column. Descriptors are element ids (int64) when the
// entry is index-referenced, or attribute values (string, number, bool) when
// it is column-referenced.
type MemberList []any

// Value serializes the list as a JSON array.
func (m MemberList) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan is lenient: NULL becomes an empty list and a bare scalar becomes a
// single-element list, so reads stay total even when the stored payload was
// corrupted by an out-of-band writer. The auditor's normalize pass persists
// the repaired form.
func (m *MemberList) Scan(value any) error {
	raw, err := rawBytes(value)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		*m = MemberList{}
		return nil
	}
	var items []any
	if err := decodeNumeric(raw, &items); err == nil {
		*m = normalizeMembers(items)
		return nil
	}
	// Scalar where an array was expected: wrap it.
	var scalar any
	if err := decodeNumeric(raw, &scalar); err != nil {
		return fmt.Errorf("members payload is not valid JSON: %w", err)
	}
	*m = normalizeMembers([]any{scalar})
	return nil
}

// AttrMap holds an element row's attribute columns, stored as a JSON object.
type AttrMap map[string]any

func (a AttrMap) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *AttrMap) Scan(value any) error {
	raw, err := rawBytes(value)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*a = AttrMap{}
		return nil
	}
	decoded := map[string]any{}
	if err := decodeNumeric(raw, &decoded); err != nil {
		return fmt.Errorf("attrs payload is not a JSON object: %w", err)
	}
	for k, v := range decoded {
		decoded[k] = coerceScalar(v)
	}
	*a = decoded
	return nil
}

// ResultMap holds an element row's computed result fields. A nil entry means
// the value is undefined (the solver's NaN), which JSON cannot carry directly.
type ResultMap map[string]*float64

func (r ResultMap) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]*float64(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *ResultMap) Scan(value any) error {
	raw, err := rawBytes(value)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*r = ResultMap{}
		return nil
	}
	decoded := map[string]*float64{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("results payload is not a JSON object: %w", err)
	}
	*r = decoded
	return nil
}

// StringList is an ordered column-name list, stored as a JSON array.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringList) Scan(value any) error {
	raw, err := rawBytes(value)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		*s = StringList{}
		return nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("column list payload is not a JSON array: %w", err)
	}
	*s = items
	return nil
}

// Contains reports whether the list holds name.
func (s StringList) Contains(name string) bool {
	for _, c := range s {
		if c == name {
			return true
		}
	}
	return false
}

func rawBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unsupported column type for JSON payload")
	}
}

// decodeNumeric unmarshals with UseNumber so integer element ids survive the
// round trip without float truncation.
func decodeNumeric(raw []byte, into any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(into)
}

func normalizeMembers(items []any) MemberList {
	out := make(MemberList, len(items))
	for i, it := range items {
		out[i] = coerceScalar(it)
	}
	return out
}

// coerceScalar maps json.Number to int64 when integral, float64 otherwise.
func coerceScalar(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
