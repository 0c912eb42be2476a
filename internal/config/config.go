// Package config loads tally settings from a YAML file with TALLY_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/tally/internal/remote"
	"github.com/dukerupert/tally/internal/users"
)

// DefaultConfigFile is the config file name within the config directory.
const DefaultConfigFile = "config.yaml"

type Remote struct {
	URL       string `yaml:"url"`
	AccessKey string `yaml:"access_key"`
}

type Sync struct {
	Debounce       time.Duration `yaml:"debounce"`
	SuppressWindow time.Duration `yaml:"suppress_window"`
}

type Server struct {
	Port         string `yaml:"port"`
	DBPath       string `yaml:"db_path"`
	RequestLimit int    `yaml:"request_limit"`
	// AccessKeyHashes are bcrypt hashes; generate with `tally hash-key`.
	AccessKeyHashes []string `yaml:"access_key_hashes"`
}

// Config is the contents of config.yaml.
type Config struct {
	Remote      Remote       `yaml:"remote"`
	MirrorPath  string       `yaml:"mirror_path"`
	LogLevel    string       `yaml:"log_level"`
	LogFile     string       `yaml:"log_file"`
	DefaultUser string       `yaml:"default_user"`
	Users       []users.User `yaml:"users"`
	Sync        Sync         `yaml:"sync"`
	Server      Server       `yaml:"server"`
}

func Default() *Config {
	return &Config{
		Remote: Remote{
			URL:       remote.PlaceholderURL,
			AccessKey: remote.PlaceholderKey,
		},
		MirrorPath: "tally-mirror.db",
		LogLevel:   "info",
		Users:      users.DefaultUsers(),
		Sync: Sync{
			Debounce:       500 * time.Millisecond,
			SuppressWindow: time.Second,
		},
		Server: Server{
			Port:         "8080",
			DBPath:       "tally.db",
			RequestLimit: 600,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/tally/config.yaml, falling back to
// ~/.config/tally/config.yaml.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determining home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "tally", DefaultConfigFile), nil
}

// Load reads path, or the default path when path is empty, then applies
// environment overrides. A missing default file yields the defaults; a
// missing explicit file is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := LoadFrom(path, explicit)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads a single file over the defaults without looking at the
// environment.
func LoadFrom(path string, mustExist bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(cfg.Users) == 0 {
		cfg.Users = users.DefaultUsers()
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TALLY_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"TALLY_URL":          &c.Remote.URL,
		"TALLY_ACCESS_KEY":   &c.Remote.AccessKey,
		"TALLY_MIRROR_PATH":  &c.MirrorPath,
		"TALLY_DB_PATH":      &c.Server.DBPath,
		"TALLY_PORT":         &c.Server.Port,
		"TALLY_LOG_LEVEL":    &c.LogLevel,
		"TALLY_LOG_FILE":     &c.LogFile,
		"TALLY_DEFAULT_USER": &c.DefaultUser,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("TALLY_ACCESS_KEY_HASHES"); ok {
		c.Server.AccessKeyHashes = splitList(v)
	}
	if v, ok := lookup("TALLY_DEBOUNCE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TALLY_DEBOUNCE: %w", err)
		}
		c.Sync.Debounce = d
	}
	if v, ok := lookup("TALLY_REQUEST_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TALLY_REQUEST_LIMIT: %w", err)
		}
		c.Server.RequestLimit = n
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Registry builds the user registry described by the config.
func (c *Config) Registry() (*users.Registry, error) {
	return users.NewRegistry(c.Users, c.DefaultUser)
}

// RemoteConfigured reports whether the backend credentials are usable.
func (c *Config) RemoteConfigured() bool {
	return remote.Configured(c.Remote.URL, c.Remote.AccessKey)
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
