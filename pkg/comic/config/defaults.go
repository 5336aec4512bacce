// Package config loads comicarc settings from file and environment.
package config

import "time"

// Default configuration values for comicarc.
const (
	// DefaultCacheSize is the number of decoded pages kept in memory.
	DefaultCacheSize = 20

	// DefaultReadAhead is how many pages past the current one are prefetched.
	DefaultReadAhead = 16

	// DefaultWorkers bounds concurrent page loads.
	DefaultWorkers = 4

	// DefaultMaxDecode caps the decoded size of one page, all animation
	// frames included.
	DefaultMaxDecode = "512MiB"

	// DefaultHTTPTimeout bounds a single web page fetch.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMaxBody caps a fetched page.
	DefaultMaxBody = "64MiB"

	// DefaultToolTimeout bounds one unrar/rar/7z invocation.
	DefaultToolTimeout = 2 * time.Minute

	DefaultThumbnailSize    = 200
	DefaultThumbnailQuality = 80

	DefaultRetryAttempts = 5
	DefaultRetryInitial  = 250 * time.Millisecond
	DefaultRetryMax      = 5 * time.Second

	// DefaultDebounce is how long the watcher waits for a container to settle.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultLogMaxSize triggers log rotation.
	DefaultLogMaxSize = "10MB"
)

// DefaultTools are the external binaries looked up on PATH.
var DefaultTools = map[string]string{
	"unrar":    "unrar",
	"rar":      "rar",
	"sevenzip": "7z",
}
