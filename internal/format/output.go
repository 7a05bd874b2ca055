// Package format writes CLI results.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Envelope is the shape of every scriptable result. Extra guidance for a
// caller goes in Meta or Hints, never in free text on stdout.
type Envelope struct {
	Data  any            `json:"data"`
	Meta  map[string]any `json:"meta,omitempty"`
	Hints []string       `json:"_hints,omitempty"`
}

// Texter is implemented by payloads that have a human rendering for --format text.
type Texter interface {
	Text() string
}

// Write writes v in the requested format.
//
// Supported formats:
// - json (default)
// - yaml
// - text
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return WriteJSON(w, v, pretty)
	case "yaml", "yml":
		return WriteYAML(w, v)
	case "text":
		return WriteText(w, v)
	default:
		return fmt.Errorf("unknown format: %s (want json, yaml or text)", format)
	}
}

func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// WriteYAML goes through JSON first so field names follow the json tags.
func WriteYAML(w io.Writer, v any) error {
	generic, err := toGeneric(v)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// WriteText prints the Texter rendering of the payload when it has one and
// falls back to YAML. Hints follow on their own lines.
func WriteText(w io.Writer, v any) error {
	var hints []string
	if env, ok := v.(Envelope); ok {
		v, hints = env.Data, env.Hints
	}
	if t, ok := v.(Texter); ok {
		s := t.Text()
		if s != "" && !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	} else if err := WriteYAML(w, v); err != nil {
		return err
	}
	for _, h := range hints {
		if _, err := fmt.Fprintf(w, "hint: %s\n", h); err != nil {
			return err
		}
	}
	return nil
}

func toGeneric(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
