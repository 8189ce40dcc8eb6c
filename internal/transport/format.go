package transport

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TextFormat tells how the text of a send is turned into bytes
type TextFormat uint32

const (
	FormatBin TextFormat = iota
	FormatOct
	FormatDec
	FormatHex
	FormatASCII
	FormatUTF8
)

var formatNames = map[TextFormat]string{
	FormatBin:   "bin",
	FormatOct:   "oct",
	FormatDec:   "dec",
	FormatHex:   "hex",
	FormatASCII: "ascii",
	FormatUTF8:  "utf8",
}

func (f TextFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", uint32(f))
}

// Valid reports whether f is one of the known formats
func (f TextFormat) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// ParseFormat accepts a format name ("hex", "UTF-8", ...) or its numeric code
func ParseFormat(s string) (TextFormat, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "")
	for f, name := range formatNames {
		if name == key {
			return f, nil
		}
	}
	if n, err := strconv.ParseUint(key, 10, 32); err == nil && TextFormat(n).Valid() {
		return TextFormat(n), nil
	}
	return 0, fmt.Errorf("unknown text format %q", s)
}

// MarshalYAML writes the format by name
func (f TextFormat) MarshalYAML() (any, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("unknown text format %d", uint32(f))
	}
	return f.String(), nil
}

// UnmarshalYAML accepts either a name or a numeric code
func (f *TextFormat) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseFormat(value.Value)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Encode converts user text into raw bytes. Numeric formats take
// whitespace separated tokens, one byte each.
func Encode(text string, format TextFormat) ([]byte, error) {
	switch format {
	case FormatBin:
		return parseTokens(text, 2)
	case FormatOct:
		return parseTokens(text, 8)
	case FormatDec:
		return parseTokens(text, 10)
	case FormatHex:
		return parseTokens(text, 16)
	case FormatASCII:
		for i := 0; i < len(text); i++ {
			if text[i] > 0x7f {
				return nil, fmt.Errorf("non-ascii byte 0x%02x at offset %d", text[i], i)
			}
		}
		return []byte(text), nil
	case FormatUTF8:
		return []byte(text), nil
	default:
		return nil, fmt.Errorf("unknown text format %d", uint32(format))
	}
}

func parseTokens(text string, base int) ([]byte, error) {
	fields := strings.Fields(text)
	out := make([]byte, 0, len(fields))
	for _, tok := range fields {
		if base == 16 {
			tok = strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X")
		}
		n, err := strconv.ParseUint(tok, base, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid base-%d byte %q: %w", base, tok, err)
		}
		out = append(out, byte(n))
	}
	return out, nil
}
