package output

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// JSONFormatter writes the whole result as one indented JSON document.
type JSONFormatter struct{}

func (*JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(buildDocument(r))
}

// YAMLFormatter writes the same document as JSONFormatter in YAML.
type YAMLFormatter struct{}

func (*YAMLFormatter) Format(w *bytes.Buffer, r *Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(buildDocument(r)); err != nil {
		return err
	}
	return enc.Close()
}

// JSONLFormatter writes one compact object per page, or per container when
// the result has no pages.
type JSONLFormatter struct{}

func (*JSONLFormatter) Format(w *bytes.Buffer, r *Result) error {
	enc := json.NewEncoder(w)
	if r.Pages != nil {
		for _, p := range r.Pages {
			if err := enc.Encode(p); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range r.Containers {
		if err := enc.Encode(c); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	Register("json", func() Formatter { return &JSONFormatter{} })
	Register("yaml", func() Formatter { return &YAMLFormatter{} })
	Register("jsonl", func() Formatter { return &JSONLFormatter{} })
}
