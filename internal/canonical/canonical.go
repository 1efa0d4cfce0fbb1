// Package canonical renders JSON documents in a single byte-exact form: object keys
// sorted bytewise, no insignificant whitespace, no HTML escaping, integers verbatim
// and non-integer numbers at a fixed 12-place precision.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places used for non-integer numbers.
const Precision = 12

var ErrDuplicateKey = errors.New("duplicate object key")

// Marshal encodes v with encoding/json and canonicalizes the result.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return Canonicalize(buf.Bytes())
}

// Canonicalize re-encodes a JSON document canonically.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out bytes.Buffer
	if err := writeValue(dec, &out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("trailing data after document")
		}
		return nil, fmt.Errorf("trailing data: %w", err)
	}
	return out.Bytes(), nil
}

type member struct {
	key   string
	value []byte
}

func writeValue(dec *json.Decoder, out *bytes.Buffer) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return writeObject(dec, out)
		case '[':
			return writeArray(dec, out)
		default:
			return fmt.Errorf("unexpected delimiter %q", v)
		}
	case string:
		return writeString(v, out)
	case json.Number:
		text, err := formatNumber(v)
		if err != nil {
			return err
		}
		out.WriteString(text)
	case bool:
		if v {
			out.WriteString("true")
		} else {
			out.WriteString("false")
		}
	case nil:
		out.WriteString("null")
	default:
		return fmt.Errorf("unexpected token %T", tok)
	}
	return nil
}

func writeObject(dec *json.Decoder, out *bytes.Buffer) error {
	members := make([]member, 0)
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("object key is %T", tok)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		}
		seen[key] = struct{}{}

		var value bytes.Buffer
		if err := writeValue(dec, &value); err != nil {
			return err
		}
		members = append(members, member{key: key, value: value.Bytes()})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].key < members[j].key
	})

	out.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			out.WriteByte(',')
		}
		if err := writeString(m.key, out); err != nil {
			return err
		}
		out.WriteByte(':')
		out.Write(m.value)
	}
	out.WriteByte('}')
	return nil
}

func writeArray(dec *json.Decoder, out *bytes.Buffer) error {
	out.WriteByte('[')
	first := true
	for dec.More() {
		if !first {
			out.WriteByte(',')
		}
		first = false
		if err := writeValue(dec, out); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("close array: %w", err)
	}
	out.WriteByte(']')
	return nil
}

func writeString(s string, out *bytes.Buffer) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode string: %w", err)
	}
	out.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return nil
}

func formatNumber(n json.Number) (string, error) {
	text := n.String()
	if !strings.ContainsAny(text, ".eE") {
		if text == "-0" {
			return "0", nil
		}
		return text, nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return "", fmt.Errorf("invalid number %q: %w", text, err)
	}
	return d.StringFixedBank(Precision), nil
}
