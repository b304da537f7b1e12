package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/openclaw/session-gateway/internal/util"
)

// Canonicalize serialises payload with object keys sorted at every depth. Array order is
// kept and neither HTML characters nor U+2028/U+2029 are escaped, matching JSON.stringify
// on a key-sorted object.
func Canonicalize(payload any) ([]byte, error) {
	raw, err := encode(payload)
	if err != nil {
		return nil, err
	}

	// Decoding into generic values turns every object into a map, which the encoder
	// writes in sorted key order. UseNumber keeps numeric literals intact.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	canonical, err := encode(generic)
	if err != nil {
		return nil, err
	}
	return unescapeLineSeparators(canonical), nil
}

// Sign returns the hex HMAC-SHA512 of the canonical form of payload.
func Sign(secret string, payload any) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return util.HmacSHA512(secret, canonical), nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

var (
	escapedLineSeparator      = []byte(`\u2028`)
	escapedParagraphSeparator = []byte(`\u2029`)
)

// unescapeLineSeparators writes U+2028 and U+2029 raw. encoding/json escapes both even
// with SetEscapeHTML(false). Escaped backslashes are skipped as pairs so a literal
// `\\u2028` in a string stays untouched.
func unescapeLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, escapedLineSeparator) && !bytes.Contains(b, escapedParagraphSeparator) {
		return b
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		switch rest := b[i:]; {
		case bytes.HasPrefix(rest, escapedLineSeparator):
			out = append(out, "\u2028"...)
			i += len(escapedLineSeparator) - 1
		case bytes.HasPrefix(rest, escapedParagraphSeparator):
			out = append(out, "\u2029"...)
			i += len(escapedParagraphSeparator) - 1
		default:
			out = append(out, b[i], b[i+1])
			i++
		}
	}
	return out
}
