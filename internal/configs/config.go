package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/sealdrop/sealdrop/internal/bundle"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
)

// Config is the relay configuration file.
type Config struct {
	Targets []Target `toml:"targets"`
	Upload  Upload   `toml:"upload,omitempty"`
	Mail    Mail     `toml:"mail,omitempty"`
	SSH     SSH      `toml:"ssh,omitempty"`
}

// Target is one recipient of every encrypted item.
type Target struct {
	Name   string `toml:"name"`
	KeyURL string `toml:"key_url"`
}

// Upload configures relay send.
type Upload struct {
	URL string `toml:"url"`
	// Retries is the number of extra attempts per bundle; 0 disables
	// retrying. Unset means DefaultUploadRetries.
	Retries int `toml:"retries"`
}

// Mail configures the mail sink of relay decrypt.
type Mail struct {
	Host     string   `toml:"host"`
	Port     string   `toml:"port,omitempty"`
	From     string   `toml:"from"`
	To       []string `toml:"to"`
	Security string   `toml:"security,omitempty"`
	User     string   `toml:"user,omitempty"`
	Pass     string   `toml:"pass,omitempty"`
}

// SSH configures the remote source backend.
type SSH struct {
	IdentityFile          string   `toml:"identity_file,omitempty"`
	KnownHostsFile        string   `toml:"known_hosts_file,omitempty"`
	InsecureIgnoreHostKey bool     `toml:"insecure_ignore_host_key,omitempty"`
	Port                  int      `toml:"port,omitempty"`
	PollInterval          Duration `toml:"poll_interval,omitempty"`
}

// Duration is a time.Duration written as a string such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultUploadRetries applies when [upload] retries is not set.
const DefaultUploadRetries = 3

// Default returns the configuration used when no file is given. Load decodes
// on top of it.
func Default() *Config {
	return &Config{Upload: Upload{Retries: DefaultUploadRetries}}
}

// Load reads the configuration at path. Unknown keys are rejected so typos
// do not silently drop a recipient.
func Load(path string) (*Config, error) {
	config := Default()
	if err := LoadTOML(path, config); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", kerrors.ErrConfig, path, err)
	}
	return config, nil
}

// Save writes config to path.
func Save(path string, config *Config) error {
	if err := SaveTOML(path, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// ValidateTargets checks the settings relay encrypt depends on.
func (c *Config) ValidateTargets() error {
	if len(c.Targets) == 0 {
		return kerrors.ErrNoRecipients
	}

	seen := make(map[string]bool, len(c.Targets))
	for i, target := range c.Targets {
		if err := bundle.ValidateName(target.Name); err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
		if seen[target.Name] {
			return fmt.Errorf("%w: target %q is listed twice", kerrors.ErrConfig, target.Name)
		}
		seen[target.Name] = true
		if strings.TrimSpace(target.KeyURL) == "" {
			return fmt.Errorf("%w: target %q has no key_url", kerrors.ErrConfig, target.Name)
		}
	}
	return nil
}

// ValidateUpload checks the settings relay send depends on.
func (c *Config) ValidateUpload() error {
	if c.Upload.URL == "" {
		return fmt.Errorf("%w: [upload] url is required", kerrors.ErrConfig)
	}
	if c.Upload.Retries < 0 {
		return fmt.Errorf("%w: [upload] retries must not be negative", kerrors.ErrConfig)
	}
	return nil
}

// Target returns the target called name.
func (c *Config) Target(name string) (Target, bool) {
	for _, target := range c.Targets {
		if target.Name == name {
			return target, true
		}
	}
	return Target{}, false
}

// Example returns a configuration with placeholder values, written by
// config init.
func Example() *Config {
	return &Config{
		Targets: []Target{
			{Name: "alice", KeyURL: "https://keys.example.com/alice.json"},
		},
		Upload: Upload{URL: "http://localhost:8080/upload", Retries: DefaultUploadRetries},
	}
}
