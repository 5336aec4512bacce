package output

import "time"

// document is the shape shared by the JSON and YAML formatters.
type document struct {
	Source     string      `json:"source" yaml:"source"`
	Containers []Container `json:"containers,omitempty" yaml:"containers,omitempty"`
	Pages      []Page      `json:"pages,omitempty" yaml:"pages,omitempty"`
	Scan       *scanDoc    `json:"scan,omitempty" yaml:"scan,omitempty"`
	Warm       *warmDoc    `json:"warm,omitempty" yaml:"warm,omitempty"`
	Meta       metaDoc     `json:"meta" yaml:"meta"`
}

type scanDoc struct {
	ScanStats `yaml:",inline"`
	Duration  string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

type warmDoc struct {
	WarmStats `yaml:",inline"`
	Duration  string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

type metaDoc struct {
	TotalContainers int      `json:"total_containers" yaml:"total_containers"`
	TotalPages      int      `json:"total_pages" yaml:"total_pages"`
	TotalSize       int64    `json:"total_size" yaml:"total_size"`
	Warnings        []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func buildDocument(r *Result) document {
	doc := document{
		Source:     r.Source,
		Containers: r.Containers,
		Pages:      r.Pages,
		Meta: metaDoc{
			TotalContainers: len(r.Containers),
			TotalPages:      r.TotalPages(),
			TotalSize:       r.TotalSize(),
			Warnings:        r.Warnings,
		},
	}
	if r.Scan != nil {
		doc.Scan = &scanDoc{ScanStats: *r.Scan, Duration: formatDurationString(r.Scan.Duration)}
	}
	if r.Warm != nil {
		doc.Warm = &warmDoc{WarmStats: *r.Warm, Duration: formatDurationString(r.Warm.Duration)}
	}
	return doc
}

// formatDurationString formats a duration for structured output.
func formatDurationString(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
