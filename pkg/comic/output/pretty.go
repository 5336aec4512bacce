package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats output with colors and boxes for a terminal.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	if r.Pages != nil || len(r.Containers) != 1 {
		w.WriteString(f.formatTable(r))
	}

	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	var lines []string
	if r.Source != "" {
		lines = append(lines, styles.label.Render("Source:")+" "+styles.value.Render(r.Source))
	}

	if r.Pages == nil && len(r.Containers) == 1 {
		c := r.Containers[0]
		lines = append(lines, styles.title.Render(c.Title))
		for _, kv := range detailPairs(c)[1:] {
			if kv[0] == "Title" {
				continue
			}
			lines = append(lines, styles.label.Render(kv[0]+":")+" "+styles.value.Render(kv[1]))
		}
	}

	if len(lines) == 0 {
		lines = append(lines, styles.title.Render("comicarc"))
	}
	return styles.header.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	header, rows := r.Table()
	if len(rows) == 0 {
		return styles.muted.Render("  Nothing to show") + "\n"
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	last := len(header) - 1

	var sb strings.Builder
	sb.WriteString(" ")
	for i, h := range header {
		sb.WriteString(" ")
		sb.WriteString(styles.column.Render(pad(h, widths[i], i == last)))
	}
	sb.WriteString("\n")

	for _, row := range rows {
		sb.WriteString(" ")
		for i, cell := range row {
			sb.WriteString(" ")
			style := styles.value
			switch {
			case i == last:
				style = styles.path
			case i == 0:
				style = styles.size
			}
			sb.WriteString(style.Render(pad(cell, widths[i], i == last)))
			sb.WriteString("  ")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// pad right-aligns leading numeric columns and leaves the last column ragged.
func pad(s string, width int, last bool) string {
	if last {
		return s
	}
	return padLeft(s, width)
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	var parts []string

	if r.Pages != nil {
		parts = append(parts, styles.label.Render("Pages:")+" "+styles.value.Render(fmt.Sprintf("%d", len(r.Pages))))
	} else if len(r.Containers) > 0 {
		parts = append(parts,
			styles.label.Render("Containers:")+" "+styles.value.Render(fmt.Sprintf("%d", len(r.Containers))),
			styles.label.Render("Pages:")+" "+styles.value.Render(fmt.Sprintf("%d", r.TotalPages())),
			styles.label.Render("Total:")+" "+styles.size.Render(humanize.IBytes(uint64(r.TotalSize()))),
		)
	}

	if s := r.Scan; s != nil {
		status := styles.ok.Render(fmt.Sprintf("indexed %d", s.Indexed))
		if s.Failed > 0 {
			status += " " + styles.fail.Render(fmt.Sprintf("failed %d", s.Failed))
		}
		parts = append(parts,
			status,
			styles.muted.Render(fmt.Sprintf("skipped %d removed %d in %s", s.Skipped, s.Removed, formatDuration(s.Duration))),
		)
	}

	if s := r.Warm; s != nil {
		status := styles.ok.Render(fmt.Sprintf("loaded %d", s.Loaded))
		if s.Failed > 0 {
			status += " " + styles.fail.Render(fmt.Sprintf("failed %d", s.Failed))
		}
		parts = append(parts,
			status,
			styles.muted.Render(fmt.Sprintf("cached %d in %s", s.Cached, formatDuration(s.Duration))),
		)
	}

	parts = append(parts, styles.muted.Render("Use --format plain for unformatted output"))
	return styles.footer.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(styles.warn.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(styles.warn.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
