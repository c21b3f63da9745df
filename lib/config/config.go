// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/keybridge/lib/consent"
	"github.com/bureau-foundation/keybridge/lib/credstore"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "KEYBRIDGE_CONFIG"

// Config is the master configuration for keybridge binaries.
type Config struct {
	// Environment is the deployment environment.
	Environment Environment `yaml:"environment"`

	// Paths configures filesystem locations.
	Paths PathsConfig `yaml:"paths"`

	// Daemon configures keybridge-daemon.
	Daemon DaemonConfig `yaml:"daemon"`

	// Client configures the client mode manager used by the keybridge
	// CLI.
	Client ClientConfig `yaml:"client"`

	// Environment-specific overrides.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// PathsConfig configures filesystem locations.
type PathsConfig struct {
	// Root is the base directory for keybridge state.
	// Default: ~/.local/share/keybridge
	Root string `yaml:"root"`
}

// DaemonConfig configures the custody daemon.
type DaemonConfig struct {
	// Listen is the multiaddr the API binds. It must resolve to a
	// loopback address.
	Listen string `yaml:"listen"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	CredentialStore CredentialStoreConfig `yaml:"credential_store"`
	RateLimit       RateLimitConfig       `yaml:"rate_limit"`
	Consent         ConsentConfig         `yaml:"consent"`
	Audit           AuditConfig           `yaml:"audit"`
}

// CredentialStoreConfig selects where the daemon keeps its key.
type CredentialStoreConfig struct {
	// Backend is keyring, sealed, or memory.
	Backend string `yaml:"backend"`

	// Service is the OS keyring service name.
	Service string `yaml:"service"`

	// Directory holds sealed credential files.
	Directory string `yaml:"directory"`

	// KeyFile is the age identity sealing the credential files.
	KeyFile string `yaml:"key_file"`
}

// RateLimitConfig bounds consent-gated calls per origin. PerSecond
// zero disables limiting.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// ConsentConfig configures the consent gate.
type ConsentConfig struct {
	// Mode is always or unrecognized. "never" is only accepted from
	// KEYBRIDGE_CONSENT_MODE.
	Mode string `yaml:"mode"`

	// Deadline is how long a shown prompt waits for an answer.
	Deadline time.Duration `yaml:"deadline"`

	// PromptGenerate makes key generation prompt for approval.
	PromptGenerate bool `yaml:"prompt_generate"`

	// TrustedOriginsFile is a JSONC array of origins. When set it is
	// appended to TrustedOrigins.
	TrustedOriginsFile string `yaml:"trusted_origins_file"`

	TrustedOrigins []string `yaml:"trusted_origins"`
}

// AuditConfig configures the consent audit log.
type AuditConfig struct {
	// Path is the active audit segment.
	Path string `yaml:"path"`

	// MaxBytes triggers rotation into a compressed segment. Zero
	// disables rotation.
	MaxBytes int64 `yaml:"max_bytes"`
}

// ClientConfig configures a client surface.
type ClientConfig struct {
	// DaemonURL is the base URL of the daemon API.
	DaemonURL string `yaml:"daemon_url"`

	// StateDir holds the persisted mode state, migration journal, and
	// the local key envelope.
	StateDir string `yaml:"state_dir"`

	// Origin identifies this surface in consent prompts.
	Origin string `yaml:"origin"`

	ProbeInterval  time.Duration `yaml:"probe_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// PassphraseFile holds the passphrase protecting the local key
	// envelope. When empty the CLI reads it from the terminal.
	PassphraseFile string `yaml:"passphrase_file"`
}

// Overrides holds environment-specific settings. Nil pointers leave the
// base value untouched.
type Overrides struct {
	Paths  *PathsConfig     `yaml:"paths,omitempty"`
	Daemon *DaemonOverrides `yaml:"daemon,omitempty"`
	Client *ClientConfig    `yaml:"client,omitempty"`
}

// DaemonOverrides mirrors the daemon fields that commonly differ
// between environments.
type DaemonOverrides struct {
	Listen         string           `yaml:"listen,omitempty"`
	Backend        string           `yaml:"credential_store_backend,omitempty"`
	ConsentMode    string           `yaml:"consent_mode,omitempty"`
	PromptGenerate *bool            `yaml:"prompt_generate,omitempty"`
	RateLimit      *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// Default returns a Config with development defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".local", "share", "keybridge")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root: root,
		},
		Daemon: DaemonConfig{
			Listen:          "/ip4/127.0.0.1/tcp/7823",
			ShutdownTimeout: 10 * time.Second,
			CredentialStore: CredentialStoreConfig{
				Backend:   credstore.BackendKeyring,
				Service:   "keybridge",
				Directory: "${KEYBRIDGE_ROOT}/credentials",
				KeyFile:   "${KEYBRIDGE_ROOT}/credentials/identity.age",
			},
			RateLimit: RateLimitConfig{
				PerSecond: 2,
				Burst:     5,
			},
			Consent: ConsentConfig{
				Mode:           string(consent.ModeAlways),
				Deadline:       consent.DefaultDeadline,
				PromptGenerate: true,
			},
			Audit: AuditConfig{
				Path:     "${KEYBRIDGE_ROOT}/audit/consent.jsonl",
				MaxBytes: 8 << 20,
			},
		},
		Client: ClientConfig{
			DaemonURL:      "http://127.0.0.1:7823",
			StateDir:       "${KEYBRIDGE_ROOT}/client",
			Origin:         "keybridge-cli",
			ProbeInterval:  5 * time.Second,
			ProbeTimeout:   2 * time.Second,
			RequestTimeout: 90 * time.Second,
		},
	}
}

// Load reads the file named by KEYBRIDGE_CONFIG. The variable must be
// set; there is no search path.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; pass --config or set %s", EnvironmentVariable, EnvironmentVariable)
	}
	return LoadFile(path)
}

// Resolve loads the explicit path when given, then KEYBRIDGE_CONFIG,
// and otherwise returns the expanded defaults. The CLI uses it so a
// bare "keybridge status" works on a fresh machine.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

// LoadFile loads configuration from a specific file. Values in the file
// replace defaults; the matching environment section is applied on
// top, then variables are expanded.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies environment-specific settings.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides != nil {
		if overrides.Paths != nil && overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if daemon := overrides.Daemon; daemon != nil {
			if daemon.Listen != "" {
				c.Daemon.Listen = daemon.Listen
			}
			if daemon.Backend != "" {
				c.Daemon.CredentialStore.Backend = daemon.Backend
			}
			if daemon.ConsentMode != "" {
				c.Daemon.Consent.Mode = daemon.ConsentMode
			}
			if daemon.PromptGenerate != nil {
				c.Daemon.Consent.PromptGenerate = *daemon.PromptGenerate
			}
			if daemon.RateLimit != nil {
				c.Daemon.RateLimit = *daemon.RateLimit
			}
		}
		if client := overrides.Client; client != nil {
			if client.DaemonURL != "" {
				c.Client.DaemonURL = client.DaemonURL
			}
			if client.StateDir != "" {
				c.Client.StateDir = client.StateDir
			}
			if client.ProbeInterval != 0 {
				c.Client.ProbeInterval = client.ProbeInterval
			}
			if client.ProbeTimeout != 0 {
				c.Client.ProbeTimeout = client.ProbeTimeout
			}
			if client.RequestTimeout != 0 {
				c.Client.RequestTimeout = client.RequestTimeout
			}
		}
	}

	// Production is stricter regardless of what the section says:
	// every request is prompted, and generation is never silent.
	if c.Environment == Production {
		c.Daemon.Consent.Mode = string(consent.ModeAlways)
		c.Daemon.Consent.PromptGenerate = true
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	homeDir, _ := os.UserHomeDir()
	vars := map[string]string{
		"HOME":           homeDir,
		"KEYBRIDGE_ROOT": c.Paths.Root,
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["KEYBRIDGE_ROOT"] = c.Paths.Root

	c.Daemon.CredentialStore.Directory = expandVars(c.Daemon.CredentialStore.Directory, vars)
	c.Daemon.CredentialStore.KeyFile = expandVars(c.Daemon.CredentialStore.KeyFile, vars)
	c.Daemon.Consent.TrustedOriginsFile = expandVars(c.Daemon.Consent.TrustedOriginsFile, vars)
	c.Daemon.Audit.Path = expandVars(c.Daemon.Audit.Path, vars)
	c.Client.StateDir = expandVars(c.Client.StateDir, vars)
	c.Client.PassphraseFile = expandVars(c.Client.PassphraseFile, vars)
}

// varPattern matches ${VAR} or ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. Known vars
// win, then the process environment, then the default.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) > 2 {
			defaultVal = parts[2]
		}

		if val, ok := vars[varName]; ok && val != "" {
			return val
		}
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// ConsentMode resolves the effective consent mode, honoring
// KEYBRIDGE_CONSENT_MODE. Production refuses any override other than
// always.
func (c *Config) ConsentMode() (consent.Mode, error) {
	mode, err := consent.ResolveModeFromEnvironment(c.Daemon.Consent.Mode)
	if err != nil {
		return "", err
	}
	if c.Environment == Production && mode != consent.ModeAlways {
		return "", fmt.Errorf("consent mode %q is not allowed in production", mode)
	}
	return mode, nil
}

// TrustedOrigins returns the configured origins plus those in
// TrustedOriginsFile. With neither set it returns the built-in
// defaults.
func (c *Config) TrustedOrigins() ([]string, error) {
	origins := append([]string(nil), c.Daemon.Consent.TrustedOrigins...)
	if c.Daemon.Consent.TrustedOriginsFile != "" {
		loaded, err := consent.LoadTrustedOrigins(c.Daemon.Consent.TrustedOriginsFile)
		if err != nil {
			return nil, err
		}
		origins = append(origins, loaded...)
	}
	if len(origins) == 0 {
		return append([]string(nil), consent.DefaultTrustedOrigins...), nil
	}
	return origins, nil
}

// CredentialStoreOptions converts the credential store section into
// credstore options.
func (c *Config) CredentialStoreOptions() credstore.Options {
	return credstore.Options{
		Backend:   c.Daemon.CredentialStore.Backend,
		Service:   c.Daemon.CredentialStore.Service,
		Directory: c.Daemon.CredentialStore.Directory,
		KeyFile:   c.Daemon.CredentialStore.KeyFile,
	}
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}

	if c.Daemon.Listen == "" {
		errs = append(errs, errors.New("daemon.listen is required"))
	} else if _, err := multiaddr.NewMultiaddr(c.Daemon.Listen); err != nil {
		errs = append(errs, fmt.Errorf("daemon.listen: %w", err))
	}
	if c.Daemon.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("daemon.shutdown_timeout must not be negative"))
	}

	store := c.Daemon.CredentialStore
	switch store.Backend {
	case credstore.BackendKeyring:
		if store.Service == "" {
			errs = append(errs, errors.New("daemon.credential_store.service is required for the keyring backend"))
		}
	case credstore.BackendSealed:
		if store.Directory == "" || store.KeyFile == "" {
			errs = append(errs, errors.New("daemon.credential_store.directory and key_file are required for the sealed backend"))
		}
	case credstore.BackendMemory:
		if c.Environment == Production {
			errs = append(errs, errors.New("daemon.credential_store.backend memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("daemon.credential_store.backend: unknown backend %q", store.Backend))
	}

	if c.Daemon.RateLimit.PerSecond < 0 || c.Daemon.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("daemon.rate_limit values must not be negative"))
	}
	if c.Daemon.RateLimit.PerSecond > 0 && c.Daemon.RateLimit.Burst == 0 {
		errs = append(errs, errors.New("daemon.rate_limit.burst must be positive when per_second is set"))
	}

	if _, err := c.ConsentMode(); err != nil {
		errs = append(errs, fmt.Errorf("daemon.consent.mode: %w", err))
	}
	if c.Daemon.Consent.Deadline <= 0 {
		errs = append(errs, errors.New("daemon.consent.deadline must be positive"))
	}

	if c.Daemon.Audit.Path == "" {
		errs = append(errs, errors.New("daemon.audit.path is required"))
	}
	if c.Daemon.Audit.MaxBytes < 0 {
		errs = append(errs, errors.New("daemon.audit.max_bytes must not be negative"))
	}

	if c.Client.DaemonURL == "" {
		errs = append(errs, errors.New("client.daemon_url is required"))
	} else if parsed, err := url.Parse(c.Client.DaemonURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("client.daemon_url: %q is not an absolute URL", c.Client.DaemonURL))
	}
	if c.Client.StateDir == "" {
		errs = append(errs, errors.New("client.state_dir is required"))
	}
	if c.Client.Origin == "" {
		errs = append(errs, errors.New("client.origin is required"))
	}
	if c.Client.ProbeInterval <= 0 || c.Client.ProbeTimeout <= 0 || c.Client.RequestTimeout <= 0 {
		errs = append(errs, errors.New("client probe_interval, probe_timeout and request_timeout must be positive"))
	} else if c.Client.ProbeTimeout > c.Client.ProbeInterval {
		errs = append(errs, errors.New("client.probe_timeout must not exceed client.probe_interval"))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the state directories the configuration names.
func (c *Config) EnsurePaths() error {
	dirs := []string{
		c.Paths.Root,
		filepath.Dir(c.Daemon.Audit.Path),
		c.Client.StateDir,
	}
	if c.Daemon.CredentialStore.Backend == credstore.BackendSealed {
		dirs = append(dirs, c.Daemon.CredentialStore.Directory)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	return nil
}
