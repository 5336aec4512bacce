package config

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/comicarc/pkg/comic/archive"
	"github.com/jamesainslie/comicarc/pkg/comic/decode"
	"github.com/jamesainslie/comicarc/pkg/comic/loader"
	"github.com/jamesainslie/comicarc/pkg/comic/logging"
	"github.com/jamesainslie/comicarc/pkg/comic/thumb"
	"github.com/jamesainslie/comicarc/pkg/comic/tuner"
)

const appName = "comicarc"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size" json:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age" json:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily" json:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level" yaml:"level" json:"level"`
	Path       string            `mapstructure:"path" yaml:"path" json:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
	Components map[string]string `mapstructure:"components" yaml:"components,omitempty" json:"components,omitempty"`
}

// CacheConfig sizes the decoded page cache and loader.
type CacheConfig struct {
	Size      int    `mapstructure:"size" yaml:"size" json:"size"`
	ReadAhead int    `mapstructure:"read_ahead" yaml:"read_ahead" json:"read_ahead"`
	Workers   int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	MaxDecode string `mapstructure:"max_decode" yaml:"max_decode" json:"max_decode"`
}

// HTTPConfig configures web archive fetches.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxBody string        `mapstructure:"max_body" yaml:"max_body" json:"max_body"`
}

// ToolsConfig names the external archive tools.
type ToolsConfig struct {
	Unrar      string        `mapstructure:"unrar" yaml:"unrar" json:"unrar"`
	Rar        string        `mapstructure:"rar" yaml:"rar" json:"rar"`
	SevenZip   string        `mapstructure:"sevenzip" yaml:"sevenzip" json:"sevenzip"`
	RarEnabled bool          `mapstructure:"rar_enabled" yaml:"rar_enabled" json:"rar_enabled"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	ScratchDir string        `mapstructure:"scratch_dir" yaml:"scratch_dir" json:"scratch_dir"`
}

// ThumbnailConfig configures rendered thumbnails.
type ThumbnailConfig struct {
	Size    int `mapstructure:"size" yaml:"size" json:"size"`
	Quality int `mapstructure:"quality" yaml:"quality" json:"quality"`
}

// IndexConfig locates the library index.
type IndexConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

// RetryConfig bounds retried container opens.
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts" yaml:"attempts" json:"attempts"`
	Initial  time.Duration `mapstructure:"initial" yaml:"initial" json:"initial"`
	Max      time.Duration `mapstructure:"max" yaml:"max" json:"max"`
}

// LibraryConfig configures scanning and watching.
type LibraryConfig struct {
	Root     string        `mapstructure:"root" yaml:"root" json:"root"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

// Config represents the application configuration.
type Config struct {
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache" json:"cache"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http" json:"http"`
	Tools     ToolsConfig     `mapstructure:"tools" yaml:"tools" json:"tools"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail" yaml:"thumbnail" json:"thumbnail"`
	Index     IndexConfig     `mapstructure:"index" yaml:"index" json:"index"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry" json:"retry"`
	Library   LibraryConfig   `mapstructure:"library" yaml:"library" json:"library"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging" json:"logging"`

	// File is the config file that was read, empty when defaults were used.
	File string `mapstructure:"-" yaml:"-" json:"file,omitempty"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/comicarc/config.yaml
//   - $HOME/.config/comicarc/config.yaml
//
// Environment variables are prefixed with COMICARC_ (e.g. COMICARC_CACHE_SIZE).
func Load() (*Config, error) {
	return load("")
}

// LoadFile loads configuration from an explicit file. Environment
// variables still apply.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, appName))
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", appName))
	}

	v.SetEnvPrefix("COMICARC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	var err error
	if cfg.Index.Path, err = ExpandPath(cfg.Index.Path); err != nil {
		return nil, err
	}
	if cfg.Library.Root, err = ExpandPath(cfg.Library.Root); err != nil {
		return nil, err
	}
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}
	if _, err := cfg.MaxDecodeBytes(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.size", DefaultCacheSize)
	v.SetDefault("cache.read_ahead", DefaultReadAhead)
	v.SetDefault("cache.workers", DefaultWorkers)
	v.SetDefault("cache.max_decode", DefaultMaxDecode)

	v.SetDefault("http.timeout", DefaultHTTPTimeout)
	v.SetDefault("http.max_body", DefaultMaxBody)

	v.SetDefault("tools.unrar", DefaultTools["unrar"])
	v.SetDefault("tools.rar", DefaultTools["rar"])
	v.SetDefault("tools.sevenzip", DefaultTools["sevenzip"])
	v.SetDefault("tools.rar_enabled", true)
	v.SetDefault("tools.timeout", DefaultToolTimeout)
	v.SetDefault("tools.scratch_dir", "") // Empty means os.TempDir()

	v.SetDefault("thumbnail.size", DefaultThumbnailSize)
	v.SetDefault("thumbnail.quality", DefaultThumbnailQuality)

	v.SetDefault("index.path", DefaultIndexPath())

	v.SetDefault("retry.attempts", DefaultRetryAttempts)
	v.SetDefault("retry.initial", DefaultRetryInitial)
	v.SetDefault("retry.max", DefaultRetryMax)

	v.SetDefault("library.root", "")
	v.SetDefault("library.debounce", DefaultDebounce)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"archive": "info",
		"loader":  "info",
		"library": "info",
	})
}

// MaxBodyBytes parses HTTP.MaxBody.
func (c *Config) MaxBodyBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.HTTP.MaxBody)
	if err != nil {
		return 0, fmt.Errorf("invalid http.max_body %q: %w", c.HTTP.MaxBody, err)
	}
	return int64(n), nil
}

// ArchiveOptions maps the configuration onto archive.Open options.
func (c *Config) ArchiveOptions() ([]archive.Option, error) {
	maxBody, err := c.MaxBodyBytes()
	if err != nil {
		return nil, err
	}
	return []archive.Option{
		archive.WithTools(archive.Tools{
			Unrar:    c.Tools.Unrar,
			Rar:      c.Tools.Rar,
			SevenZip: c.Tools.SevenZip,
		}),
		archive.WithRar(c.Tools.RarEnabled),
		archive.WithToolTimeout(c.Tools.Timeout),
		archive.WithHTTPTimeout(c.HTTP.Timeout),
		archive.WithMaxBody(maxBody),
		archive.WithScratchDir(c.Tools.ScratchDir),
	}, nil
}

// RetryPolicy returns the policy for retried opens.
func (c *Config) RetryPolicy() archive.RetryPolicy {
	return archive.RetryPolicy{
		Attempts: c.Retry.Attempts,
		Initial:  c.Retry.Initial,
		Max:      c.Retry.Max,
	}
}

// MaxDecodeBytes parses Cache.MaxDecode. Empty means the decoder default.
func (c *Config) MaxDecodeBytes() (int64, error) {
	if c.Cache.MaxDecode == "" {
		return decode.DefaultMaxBytes, nil
	}
	n, err := humanize.ParseBytes(c.Cache.MaxDecode)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid cache.max_decode %q: %w", c.Cache.MaxDecode, cmp.Or(err, errZeroSize))
	}
	return int64(n), nil
}

var errZeroSize = errors.New("size must be positive")

// decodeBudget is MaxDecodeBytes, falling back to the decoder default.
func (c *Config) decodeBudget() int64 {
	n, err := c.MaxDecodeBytes()
	if err != nil {
		return decode.DefaultMaxBytes
	}
	return n
}

// LoaderOptions returns the page loader settings.
func (c *Config) LoaderOptions() loader.Options {
	opts := loader.DefaultOptions()
	opts.Decoder = decode.Decoder{MaxBytes: c.decodeBudget()}.Decode
	if c.Cache.ReadAhead >= 0 {
		opts.ReadAhead = c.Cache.ReadAhead
	}
	if c.Cache.Workers > 0 {
		opts.Workers = c.Cache.Workers
	} else {
		opts.Workers = tuner.Auto().DecodeWorkers
	}
	return opts
}

// ThumbnailOptions returns the thumbnail settings.
func (c *Config) ThumbnailOptions() thumb.Options {
	return thumb.Options{
		Size:           c.Thumbnail.Size,
		Quality:        c.Thumbnail.Quality,
		MaxDecodeBytes: c.decodeBudget(),
	}
}

// LoggingOptions converts the logging section for logging.Init.
func (c *Config) LoggingOptions() (logging.Config, error) {
	rotation := logging.DefaultRotationConfig()
	if c.Logging.Rotation.MaxSize != "" {
		n, err := humanize.ParseBytes(c.Logging.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("invalid logging.rotation.max_size %q: %w", c.Logging.Rotation.MaxSize, err)
		}
		rotation.MaxSize = int64(n)
	}
	rotation.MaxAge = c.Logging.Rotation.MaxAge
	rotation.MaxBackups = c.Logging.Rotation.MaxBackups
	rotation.Daily = c.Logging.Rotation.Daily

	path := c.Logging.Path
	if path == "" {
		path = logging.DefaultLogPath()
	}
	return logging.Config{
		Level:      c.Logging.Level,
		Path:       path,
		Rotation:   rotation,
		Components: c.Logging.Components,
	}, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", appName), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a commented default config file and returns its path.
// An existing file is left untouched unless force is set.
func WriteDefault(force bool) (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to check config file: %w", err)
		}
	}

	defaultConfig := fmt.Sprintf(`# comicarc configuration

# Decoded page cache and background loading
cache:
  size: %d
  read_ahead: %d
  workers: %d        # 0 sizes the pool to the CPU
  max_decode: %s  # per decoded page, animation frames included

# Web archive page fetches
http:
  timeout: %s
  max_body: %s

# External archive tools, looked up on PATH
tools:
  unrar: unrar
  rar: rar
  sevenzip: 7z
  rar_enabled: true
  timeout: %s
  # Parent for extraction scratch directories (empty means the system temp dir)
  scratch_dir: ""

# Library thumbnails
thumbnail:
  size: %d
  quality: %d

# Library index database
index:
  path: %s

# Retried opens of containers that are still being copied
retry:
  attempts: %d
  initial: %s
  max: %s

# Library scanning and watching
library:
  # Directory used by scan and watch when none is given
  root: ""
  debounce: %s

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/comicarc/comicarc.log)
  path: ""
  rotation:
    max_size: %s
    max_age: 30       # days
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    archive: info
    loader: info
    library: info
`,
		DefaultCacheSize, DefaultReadAhead, DefaultWorkers, DefaultMaxDecode,
		DefaultHTTPTimeout, DefaultMaxBody,
		DefaultToolTimeout,
		DefaultThumbnailSize, DefaultThumbnailQuality,
		DefaultIndexPath(),
		DefaultRetryAttempts, DefaultRetryInitial, DefaultRetryMax,
		DefaultDebounce,
		DefaultLogMaxSize,
	)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return configPath, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/comicarc/.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// DefaultIndexPath returns the default library index directory.
func DefaultIndexPath() string {
	return filepath.Join(DataDir(), "index")
}
