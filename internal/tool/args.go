package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Parsed is the outcome of decoding a tool call's argument text. Exactly
// one of Args and Err is meaningful.
type Parsed struct {
	Args map[string]any
	Err  error
}

// OK reports whether the arguments decoded.
func (p Parsed) OK() bool { return p.Err == nil }

// ParseArguments decodes raw argument text into a JSON object. An empty
// payload or a literal null decodes to an empty object. Numbers are kept
// as json.Number so they re-encode unchanged.
func ParseArguments(raw json.RawMessage) Parsed {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Parsed{Args: map[string]any{}}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Parsed{Err: fmt.Errorf("invalid tool arguments: %w", err)}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Parsed{Err: errors.New("invalid tool arguments: trailing data after JSON value")}
	}
	args, ok := v.(map[string]any)
	if !ok {
		return Parsed{Err: fmt.Errorf("invalid tool arguments: expected JSON object, got %T", v)}
	}
	return Parsed{Args: args}
}
