package output

import (
	"bytes"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// TemplateFormatter renders a user-supplied text/template. The template sees
// the Result plus TotalSize and TotalPages, and can call date and bytes:
//
//	{{range .Containers}}{{.Title}} {{bytes .Size}} {{date .ModTime "2006-01-02"}}
//	{{end}}
type TemplateFormatter struct {
	mu   sync.Mutex
	tmpl *template.Template
	err  error // parse error, reported by Format
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
	"bytes": func(n int64) string { return humanize.IBytes(uint64(n)) },
}

// NewTemplateFormatter parses text. A parse error surfaces on Format.
func NewTemplateFormatter(text string) *TemplateFormatter {
	f := &TemplateFormatter{}
	f.SetTemplate(text)
	return f
}

// SetTemplate replaces the template.
func (f *TemplateFormatter) SetTemplate(text string) {
	tmpl, err := template.New("output").Funcs(templateFuncs).Parse(text)

	f.mu.Lock()
	f.tmpl, f.err = tmpl, err
	f.mu.Unlock()
}

func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Result) error {
	f.mu.Lock()
	tmpl, err := f.tmpl, f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}

	return tmpl.Execute(w, struct {
		*Result
		TotalSize  int64
		TotalPages int
	}{r, r.TotalSize(), r.TotalPages()})
}

func init() {
	Register("template", func() Formatter {
		return NewTemplateFormatter("{{range .Pages}}{{.Index}}\t{{.Name}}\n{{end}}" +
			"{{range .Containers}}{{.PageCount}}\t{{.Title}}\t{{.Path}}\n{{end}}")
	})
}
