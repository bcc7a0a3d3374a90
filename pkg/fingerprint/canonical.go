package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize produces a deterministic JSON encoding of v.
// Object keys are sorted lexicographically at every depth; sequences keep
// their element order. HTML characters are not escaped.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return writeCanonical(buf, m)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case []string:
		buf.WriteByte('[')
		for i, s := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeScalar(buf, s); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case string, bool, json.Number, float64, float32, int, int32, int64, uint, uint32, uint64:
		return writeScalar(buf, val)
	default:
		generic, err := toGeneric(val)
		if err != nil {
			return fmt.Errorf("canonicalize %T: %w", v, err)
		}
		return writeCanonical(buf, generic)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// toGeneric converts an arbitrary value into the generic JSON tree
// (map[string]any, []any, string, bool, json.Number, nil).
func toGeneric(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, json.Number, map[string]any, []any:
		return v, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeGeneric(data)
}

func decodeGeneric(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
