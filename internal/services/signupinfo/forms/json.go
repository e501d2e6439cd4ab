package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The registration API is PHP-backed: empty objects arrive as [], ids arrive
// as either numbers or strings, and flags as bools, numbers or strings. The
// types below absorb those variations at the JSON boundary so the decoder
// only sees normalized values.

// Object is a JSON object keyed by string that also accepts [] and null as
// the empty object.
type Object[V any] map[string]V

// UnmarshalJSON implements json.Unmarshaler.
func (o *Object[V]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if isNull(trimmed) {
		*o = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		if len(items) != 0 {
			return fmt.Errorf("expected object, got non-empty array")
		}
		*o = Object[V]{}
		return nil
	}
	var m map[string]V
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*o = m
	return nil
}

// Keys returns the object keys in stable order: numeric keys ascending by
// value first, then the remaining keys lexically.
func (o Object[V]) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// ID is an integer identifier that may be encoded as a JSON number or a
// numeric string. Absent, null and empty values decode as zero.
type ID int

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	text, err := scalarText(data)
	if err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	if text == "" {
		*id = 0
		return nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return fmt.Errorf("decode id %q: %w", text, err)
	}
	*id = ID(n)
	return nil
}

// Code is a scalar answer or label code normalized to its text form.
type Code string

// UnmarshalJSON implements json.Unmarshaler.
func (c *Code) UnmarshalJSON(data []byte) error {
	text, err := scalarText(data)
	if err != nil {
		return fmt.Errorf("decode code: %w", err)
	}
	*c = Code(text)
	return nil
}

// Flag is a boolean that may be encoded as a bool, 0/1 or "0"/"1".
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	text, err := scalarText(data)
	if err != nil {
		return fmt.Errorf("decode flag: %w", err)
	}
	switch strings.ToLower(text) {
	case "", "0", "false", "no":
		*f = false
	default:
		*f = true
	}
	return nil
}

// Answer is one raw answer to a question. The upstream value may be a scalar
// or a list of scalars (multi-select); Values holds the normalized list and
// the raw JSON is kept verbatim for individual lookups.
type Answer struct {
	Values []string
	raw    json.RawMessage
}

// NewAnswer builds an answer from already normalized values.
func NewAnswer(values ...string) Answer {
	raw, _ := json.Marshal(values)
	if len(values) == 1 {
		raw, _ = json.Marshal(values[0])
	}
	return Answer{Values: values, raw: raw}
}

// UnmarshalJSON implements json.Unmarshaler. Objects and nested lists are
// kept verbatim with no values, so answers of shapes no question type folds
// never fail the surrounding document.
func (a *Answer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	a.raw = append(json.RawMessage(nil), trimmed...)
	a.Values = nil
	if len(trimmed) == 0 || isNull(trimmed) || trimmed[0] == '{' {
		return nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("decode answer list: %w", err)
		}
		for _, item := range items {
			if isComposite(item) {
				continue
			}
			text, err := scalarText(item)
			if err != nil {
				return fmt.Errorf("decode answer item: %w", err)
			}
			a.Values = append(a.Values, text)
		}
		return nil
	}
	text, err := scalarText(trimmed)
	if err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	a.Values = []string{text}
	return nil
}

// quoted reports whether the upstream sent the answer as a JSON string.
func (a Answer) quoted() bool {
	return len(a.raw) > 0 && a.raw[0] == '"'
}

// MarshalJSON returns the answer exactly as the upstream sent it.
func (a Answer) MarshalJSON() ([]byte, error) {
	if len(a.raw) == 0 {
		return []byte("null"), nil
	}
	return a.raw, nil
}

// Text returns a single-valued rendering of the answer.
func (a Answer) Text() string {
	return strings.Join(a.Values, ", ")
}

// Answers maps question id to answer.
type Answers = Object[Answer]

func scalarText(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || isNull(trimmed) {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	case 't':
		return "1", nil
	case 'f':
		return "0", nil
	case '{', '[':
		return "", fmt.Errorf("expected scalar, got %s", string(trimmed[:1]))
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

func isComposite(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func isNull(data []byte) bool {
	return bytes.Equal(data, []byte("null"))
}
