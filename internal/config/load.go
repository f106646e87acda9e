package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup EnvLookup
	readFile  func(string) ([]byte, error)
	homeDir   func() (string, error)
}

// WithEnv supplies a custom environment lookup used for ${VAR} expansion.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = resolver
	}
}

// Load reads the config file at path. An empty path searches the default
// locations; a missing file yields the defaults. The returned string is the
// path actually read, empty when none was found.
func Load(path string, opts ...Option) (Config, string, error) {
	options := loadOptions{
		envLookup: os.LookupEnv,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	explicit := strings.TrimSpace(path) != ""
	candidates := []string{path}
	if !explicit {
		candidates = defaultPaths(options.homeDir)
	}

	for _, candidate := range candidates {
		data, err := options.readFile(candidate)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !explicit {
				continue
			}
			return Config{}, candidate, fmt.Errorf("read config file: %w", err)
		}
		cfg, err := Parse(data, options.envLookup)
		if err != nil {
			return Config{}, candidate, err
		}
		return cfg, candidate, nil
	}
	return Default(), "", nil
}

// Parse expands env references in data, decodes it and applies defaults.
func Parse(data []byte, lookup EnvLookup) (Config, error) {
	var cfg Config
	if len(bytes.TrimSpace(data)) > 0 {
		expanded := ExpandEnv(string(data), lookup)
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultPaths(homeDir func() (string, error)) []string {
	paths := []string{"dbxagent.yaml", "dbxagent.yml", "dbxagent.json"}
	if homeDir != nil {
		if home, err := homeDir(); err == nil && home != "" {
			paths = append(paths, filepath.Join(home, ".dbxagent", "config.yaml"))
		}
	}
	return paths
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references. Unset variables
// without a default expand to the empty string.
func ExpandEnv(text string, lookup EnvLookup) string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return envRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := envRefPattern.FindStringSubmatch(match)
		if value, ok := lookup(parts[1]); ok && value != "" {
			return value
		}
		return parts[2]
	})
}
