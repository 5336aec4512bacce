package output

import (
	"bytes"
	"encoding/csv"
	"strings"
)

// tableFormatter writes Result.Table one row at a time.
type tableFormatter struct {
	row  func(w *bytes.Buffer, cells []string) error
	rule bool // separator row after the header
}

// Format writes the formatted output to the buffer.
func (f tableFormatter) Format(w *bytes.Buffer, r *Result) error {
	header, rows := r.Table()
	if err := f.row(w, header); err != nil {
		return err
	}
	if f.rule {
		sep := make([]string, len(header))
		for i := range sep {
			sep[i] = "---"
		}
		if err := f.row(w, sep); err != nil {
			return err
		}
	}
	for _, cells := range rows {
		if err := f.row(w, cells); err != nil {
			return err
		}
	}
	return nil
}

func tsvRow(w *bytes.Buffer, cells []string) error {
	w.WriteString(strings.Join(cells, "\t"))
	return w.WriteByte('\n')
}

// csvRow quotes per RFC 4180.
func csvRow(w *bytes.Buffer, cells []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cells); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

var markdownEscaper = strings.NewReplacer("|", `\|`)

func markdownRow(w *bytes.Buffer, cells []string) error {
	w.WriteByte('|')
	for _, c := range cells {
		w.WriteByte(' ')
		w.WriteString(markdownEscaper.Replace(c))
		w.WriteString(" |")
	}
	return w.WriteByte('\n')
}

func init() {
	for name, f := range map[string]tableFormatter{
		"tsv":      {row: tsvRow},
		"csv":      {row: csvRow},
		"markdown": {row: markdownRow, rule: true},
	} {
		Register(name, func() Formatter { return f })
	}
}
