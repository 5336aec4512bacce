package output

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// detailPairs lists the labelled fields shown for a single container.
func detailPairs(c Container) [][2]string {
	pairs := [][2]string{
		{"Path", c.Path},
		{"Kind", c.Kind},
		{"Title", c.Title},
		{"Author", c.Author},
		{"Pages", strconv.Itoa(c.PageCount)},
		{"Size", c.SizeHuman},
	}
	if c.WebArchive {
		pairs = append(pairs, [2]string{"Web archive", strconv.Itoa(len(c.URLs)) + " urls"})
	}
	for _, comment := range c.Comments {
		pairs = append(pairs, [2]string{"Comment", comment})
	}
	return pairs
}

func writeScanLine(w *bytes.Buffer, s *ScanStats) {
	fmt.Fprintf(w, "found %d, indexed %d, skipped %d, failed %d, removed %d in %s\n",
		s.Found, s.Indexed, s.Skipped, s.Failed, s.Removed, formatDuration(s.Duration))
}

func writeWarmLine(w *bytes.Buffer, s *WarmStats) {
	fmt.Fprintf(w, "loaded %d, cache hits %d, failed %d, cached %d in %s\n",
		s.Loaded, s.CacheHits, s.Failed, s.Cached, formatDuration(s.Duration))
}

// formatDuration renders d for people: "340ms", "4.2s", "3m 5s", "2h 10m".
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Round(time.Millisecond).Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		d = d.Truncate(time.Second)
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		d = d.Truncate(time.Minute)
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func padLeft(s string, width int) string {
	return fmt.Sprintf("%*s", width, s)
}
