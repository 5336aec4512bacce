package output

import (
	"bytes"
	"strings"
	"text/tabwriter"
)

// PlainFormatter formats output as an aligned table without colors, for
// scripting and piping.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	if r.Pages == nil && len(r.Containers) == 1 {
		writeDetails(w, r.Containers[0])
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	header, rows := r.Table()
	if len(rows) > 0 {
		if _, err := tw.Write([]byte(strings.Join(header, "\t") + "\n")); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if _, err := tw.Write([]byte(strings.Join(row, "\t") + "\n")); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Scan != nil {
		writeScanLine(w, r.Scan)
	}
	if r.Warm != nil {
		writeWarmLine(w, r.Warm)
	}
	return nil
}

func writeDetails(w *bytes.Buffer, c Container) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, kv := range detailPairs(c) {
		tw.Write([]byte(kv[0] + ":\t" + kv[1] + "\n"))
	}
	tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
