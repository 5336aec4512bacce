package archive

import (
	"net/http"
	"time"
)

// Default construction parameters.
const (
	DefaultHTTPTimeout = 30 * time.Second
	DefaultMaxBody     = 64 << 20
	DefaultToolTimeout = 2 * time.Minute
)

// Tools names the external binaries used by the RAR and 7z backends.
type Tools struct {
	Unrar    string
	Rar      string
	SevenZip string
}

// Options configures Open.
type Options struct {
	// Runner executes external tools. Nil uses an ExecRunner with ToolTimeout.
	Runner Runner

	// Tools names the external binaries.
	Tools Tools

	// ToolTimeout bounds a single external tool invocation.
	ToolTimeout time.Duration

	// RarEnabled turns RAR support on. When false .rar/.cbr are unsupported.
	RarEnabled bool

	// HTTPClient fetches web archive pages. Nil uses a client with HTTPTimeout.
	HTTPClient *http.Client

	// HTTPTimeout is used only when HTTPClient is nil.
	HTTPTimeout time.Duration

	// MaxBody caps the size of a fetched page in bytes.
	MaxBody int64

	// ScratchDir is the parent for temporary extraction directories.
	// Empty uses os.TempDir().
	ScratchDir string
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns options with the standard tool names and limits.
func DefaultOptions() Options {
	return Options{
		Tools: Tools{
			Unrar:    "unrar",
			Rar:      "rar",
			SevenZip: "7z",
		},
		ToolTimeout: DefaultToolTimeout,
		RarEnabled:  true,
		HTTPTimeout: DefaultHTTPTimeout,
		MaxBody:     DefaultMaxBody,
	}
}

// WithRunner substitutes the external tool runner.
func WithRunner(r Runner) Option {
	return func(o *Options) { o.Runner = r }
}

// WithTools overrides the external binary names. Empty fields are left alone.
func WithTools(t Tools) Option {
	return func(o *Options) {
		if t.Unrar != "" {
			o.Tools.Unrar = t.Unrar
		}
		if t.Rar != "" {
			o.Tools.Rar = t.Rar
		}
		if t.SevenZip != "" {
			o.Tools.SevenZip = t.SevenZip
		}
	}
}

// WithToolTimeout bounds each external tool call.
func WithToolTimeout(d time.Duration) Option {
	return func(o *Options) { o.ToolTimeout = d }
}

// WithRar enables or disables RAR support.
func WithRar(enabled bool) Option {
	return func(o *Options) { o.RarEnabled = enabled }
}

// WithHTTPClient sets the client used by web archives.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) { o.HTTPClient = c }
}

// WithHTTPTimeout sets the timeout of the default HTTP client.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *Options) { o.HTTPTimeout = d }
}

// WithMaxBody caps fetched page sizes.
func WithMaxBody(n int64) Option {
	return func(o *Options) { o.MaxBody = n }
}

// WithScratchDir sets the parent directory for extraction scratch space.
func WithScratchDir(dir string) Option {
	return func(o *Options) { o.ScratchDir = dir }
}

func buildOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.validate()
	return o
}

func (o *Options) validate() {
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = DefaultToolTimeout
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = DefaultHTTPTimeout
	}
	if o.MaxBody <= 0 {
		o.MaxBody = DefaultMaxBody
	}
	if o.Runner == nil {
		o.Runner = ExecRunner{Timeout: o.ToolTimeout}
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.HTTPTimeout}
	}
}
