package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/vango-dev/devserve/internal/errors"
	"github.com/vango-dev/devserve/internal/mount"
)

const (
	// ConfigFileName is the config file picked up from the working directory.
	ConfigFileName = "devserve.toml"

	// DotEnvFileName is read into the environment before flags are evaluated.
	DotEnvFileName = ".env"

	// DefaultPort is the port used when no port argument is given.
	DefaultPort = 8080

	// DefaultDebounce is the file watch coalescing window.
	DefaultDebounce = 100 * time.Millisecond

	// MaxDebounce bounds the coalescing window so reloads stay prompt.
	MaxDebounce = 2 * time.Second

	EnvSkipWatch = "SKIP_WATCH"
	EnvSilent    = "SILENT"
)

// Config is the resolved server configuration.
type Config struct {
	// Port is the TCP port bound on all interfaces.
	Port int

	// Root is served by the default "/" mount and is the watch root.
	Root string

	// Fallback is the SPA document under Root served for unknown paths.
	Fallback string

	// Mounts are the explicit mounts in registration order.
	Mounts []mount.Spec

	// Watch enables the file watcher, the reload endpoint and the
	// cache-busting headers.
	Watch bool

	// Silent suppresses the startup banner and informational logs.
	Silent bool

	// Debounce is the window in which file events are merged into one reload.
	Debounce time.Duration

	// Ignore holds extra watch ignore patterns.
	Ignore []string

	// File is the config file that was loaded, if any.
	File string
}

// FileConfig is the on-disk TOML shape.
type FileConfig struct {
	Port     *int        `toml:"port"`
	Root     string      `toml:"root"`
	Fallback string      `toml:"fallback"`
	Debounce string      `toml:"debounce"`
	Ignore   []string    `toml:"ignore"`
	Mounts   []FileMount `toml:"mount"`
}

// FileMount is one [[mount]] table.
type FileMount struct {
	Prefix string `toml:"prefix"`
	Target string `toml:"target"`
}

// Options controls Load.
type Options struct {
	// Args are the positional arguments: [port] [prefix:target ...].
	Args []string

	// Getenv looks up environment variables. Defaults to os.Getenv.
	Getenv func(string) string

	// ConfigFile is an explicit config file; it must exist. When empty,
	// ConfigFileName is used if present in Dir.
	ConfigFile string

	// Dir is where ConfigFileName is looked up. Defaults to ".".
	Dir string
}

// New returns a Config with default values.
func New() *Config {
	return &Config{
		Port:     DefaultPort,
		Root:     ".",
		Fallback: mount.DefaultFallback,
		Watch:    true,
		Debounce: DefaultDebounce,
	}
}

// Load builds a Config from defaults, the config file, args and environment.
func Load(opts Options) (*Config, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}

	cfg := New()

	path, required := opts.ConfigFile, true
	if path == "" {
		path, required = filepath.Join(opts.Dir, ConfigFileName), false
	}
	fc, err := LoadFile(path)
	switch {
	case err == nil:
		if err := cfg.apply(fc); err != nil {
			return nil, err
		}
		cfg.File = path
	case !required && stderrors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	if len(opts.Args) > 0 {
		port, err := ParsePort(opts.Args[0])
		if err != nil {
			return nil, err
		}
		cfg.Port = port

		specs, err := mount.ParseAll(opts.Args[1:])
		if err != nil {
			return nil, err
		}
		cfg.Mounts = append(cfg.Mounts, specs...)
	}

	if Truthy(opts.Getenv(EnvSkipWatch)) {
		cfg.Watch = false
	}
	if Truthy(opts.Getenv(EnvSilent)) {
		cfg.Silent = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes a TOML config file.
func LoadFile(path string) (*FileConfig, error) {
	var fc FileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.New("E105").WithDetailf("%s does not exist", path).Wrap(err)
		}
		return nil, errors.New("E105").WithDetail(path).Wrap(err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New("E105").WithDetailf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return &fc, nil
}

// LoadDotEnv reads KEY=value pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || stderrors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return errors.New("E100").WithDetail(path).Wrap(err)
}

func (c *Config) apply(fc *FileConfig) error {
	if fc.Port != nil {
		if *fc.Port < 0 || *fc.Port > 65535 {
			return errors.New("E101").WithDetailf("port %d in config file", *fc.Port)
		}
		c.Port = *fc.Port
	}
	if fc.Root != "" {
		c.Root = filepath.Clean(fc.Root)
	}
	if fc.Fallback != "" {
		c.Fallback = fc.Fallback
	}
	if fc.Debounce != "" {
		d, err := time.ParseDuration(fc.Debounce)
		if err != nil {
			return errors.New("E106").WithDetailf("%q", fc.Debounce).Wrap(err)
		}
		c.Debounce = d
	}
	c.Ignore = append(c.Ignore, fc.Ignore...)

	for _, fm := range fc.Mounts {
		spec, err := mount.Parse(fm.Prefix + ":" + fm.Target)
		if err != nil {
			return err
		}
		c.Mounts = append(c.Mounts, spec)
	}
	return nil
}

// Validate checks values that may have come from flags or the config file.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("E101").WithDetailf("%d", c.Port)
	}
	if c.Debounce <= 0 || c.Debounce > MaxDebounce {
		return errors.New("E106").
			WithDetailf("%s is outside (0, %s]", c.Debounce, MaxDebounce).
			WithSuggestion(fmt.Sprintf("Use a window such as %s", DefaultDebounce))
	}
	if c.Root == "" {
		return errors.New("E100").WithDetail("root directory is empty")
	}
	return nil
}

// ParsePort parses the port argument.
func ParsePort(s string) (int, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, errors.New("E101").WithDetailf("%q", s)
	}
	return int(port), nil
}

// Truthy reports whether an environment value turns a flag on.
func Truthy(v string) bool {
	v = strings.TrimSpace(v)
	return v == "1" || strings.EqualFold(v, "true")
}

// Address returns the listen address on all interfaces.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// URL returns the local URL printed in the banner.
func (c *Config) URL() string {
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// RootMount returns the default "/" mount for this config.
func (c *Config) RootMount() mount.Mount {
	return mount.Root(c.Root, c.Fallback)
}

// Table builds the route table: the default root mount followed by the
// explicit mounts in registration order.
func (c *Config) Table() *mount.Table {
	root := c.RootMount()
	return mount.NewTable(&root, c.Mounts...)
}
