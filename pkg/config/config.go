// Package config loads gempm settings. Values come from built-in defaults,
// then the TOML config file, then the environment; command line flags are
// applied on top by the CLI.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/clintharrison/gempm/pkg/version"
	"github.com/pelletier/go-toml"
	"github.com/pingcap/errors"
)

const (
	DefaultCacheTTL    = 10 * time.Minute
	DefaultLockTimeout = 30 * time.Second
	DefaultHTTPTimeout = 30 * time.Second
)

type Config struct {
	// Path is the config file that was read, or would have been.
	Path        string
	InstallDir  string
	CacheDir    string
	Sources     []string
	CacheTTL    time.Duration
	Verbose     bool
	LockTimeout time.Duration
	// HTTPTimeout bounds each repository request.
	HTTPTimeout time.Duration
}

// rawConfig is the file representation.
type rawConfig struct {
	InstallDir  string   `toml:"install_dir"`
	CacheDir    string   `toml:"cache_dir"`
	Sources     []string `toml:"sources"`
	CacheTTL    string   `toml:"cache_ttl"`
	Verbose     bool     `toml:"verbose"`
	LockTimeout string   `toml:"lock_timeout"`
	HTTPTimeout string   `toml:"http_timeout"`
}

func Default() *Config {
	return &Config{
		Path:        version.DefaultConfigPath(),
		InstallDir:  version.DefaultInstallDir(),
		CacheDir:    version.DefaultCacheDir(),
		CacheTTL:    DefaultCacheTTL,
		LockTimeout: DefaultLockTimeout,
		HTTPTimeout: DefaultHTTPTimeout,
	}
}

// Load reads the config file at path (the default location when empty) and
// applies the environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		c.Path = path
	}
	data, err := os.ReadFile(c.Path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrapf(err, "os.ReadFile(%q)", c.Path)
	default:
		if err := c.merge(data); err != nil {
			return nil, errors.Annotatef(err, "invalid config file %s", c.Path)
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) merge(data []byte) error {
	raw := rawConfig{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "toml.Unmarshal()")
	}
	if raw.InstallDir != "" {
		c.InstallDir = expandHome(raw.InstallDir)
	}
	if raw.CacheDir != "" {
		c.CacheDir = expandHome(raw.CacheDir)
	}
	if len(raw.Sources) > 0 {
		c.Sources = raw.Sources
	}
	if raw.CacheTTL != "" {
		d, err := time.ParseDuration(raw.CacheTTL)
		if err != nil {
			return errors.Wrap(err, "cache_ttl")
		}
		c.CacheTTL = d
	}
	if raw.LockTimeout != "" {
		d, err := time.ParseDuration(raw.LockTimeout)
		if err != nil {
			return errors.Wrap(err, "lock_timeout")
		}
		c.LockTimeout = d
	}
	if raw.HTTPTimeout != "" {
		d, err := time.ParseDuration(raw.HTTPTimeout)
		if err != nil {
			return errors.Wrap(err, "http_timeout")
		}
		c.HTTPTimeout = d
	}
	c.Verbose = c.Verbose || raw.Verbose
	return nil
}

func (c *Config) applyEnv() {
	if dir := os.Getenv(version.InstallDirEnv); dir != "" {
		c.InstallDir = dir
	}
	if on, set := DebugFromEnv(); set {
		c.Verbose = on
	}
}

// DebugFromEnv reads GEMPM_DEBUG. Any non-empty value except an explicit
// false turns debugging on; set is false when the variable is empty.
func DebugFromEnv() (on, set bool) {
	v := os.Getenv(version.DebugEnv)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b, true
}

// MarshalTOML renders c in the config file format.
func (c *Config) MarshalTOML() ([]byte, error) {
	raw := rawConfig{
		InstallDir:  c.InstallDir,
		CacheDir:    c.CacheDir,
		Sources:     c.Sources,
		CacheTTL:    c.CacheTTL.String(),
		Verbose:     c.Verbose,
		LockTimeout: c.LockTimeout.String(),
		HTTPTimeout: c.HTTPTimeout.String(),
	}
	result, err := toml.Marshal(raw)
	return result, errors.Wrap(err, "unable to marshal config to TOML")
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return home + string(os.PathSeparator) + rest
}
