package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mstoykov/envconfig"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/cdptab/env"
)

// Backend kinds understood by the browser package.
const (
	BackendCDP        = "cdp"
	BackendPlaywright = "playwright"
	BackendExtension  = "extension"
)

// Defaults for BrowserConfig.
const (
	DefaultDebugPort      = 9222
	DefaultStartupTimeout = 30 * time.Second
	DefaultExtensionURL   = "http://localhost:8765"
)

// BrowserConfig is one layer of browser configuration: defaults, the JSON
// config file, the environment or CLI flags. Unset fields are not Valid so
// layers can be merged with Apply.
type BrowserConfig struct {
	Backend    null.String `json:"backend" envconfig:"CDPTAB_BACKEND"`
	BinaryPath null.String `json:"binaryPath" envconfig:"CDPTAB_BINARY_PATH"`

	Headless               null.Bool `json:"headless" envconfig:"CDPTAB_HEADLESS"`
	DisableSecurity        null.Bool `json:"disableSecurity" envconfig:"CDPTAB_DISABLE_SECURITY"`
	DeterministicRendering null.Bool `json:"deterministicRendering" envconfig:"CDPTAB_DETERMINISTIC_RENDERING"`
	KeepAlive              null.Bool `json:"keepAlive" envconfig:"CDPTAB_KEEP_ALIVE"`

	// ExtraArgs are appended after the built-in launch arguments. A nil
	// slice means unset.
	ExtraArgs    []string    `json:"extraArgs" envconfig:"CDPTAB_EXTRA_ARGS"`
	TargetTabURL null.String `json:"targetTabUrl" envconfig:"CDPTAB_TARGET_TAB_URL"`

	DebugPort null.Int `json:"debugPort" envconfig:"CDPTAB_DEBUG_PORT"`
	// StartupTimeout is in seconds.
	StartupTimeout null.Int    `json:"startupTimeout" envconfig:"CDPTAB_STARTUP_TIMEOUT"`
	UserDataDir    null.String `json:"userDataDir" envconfig:"CDPTAB_USER_DATA_DIR"`

	// InDocker falls back to the IN_DOCKER variable when unset.
	InDocker null.Bool `json:"inDocker" envconfig:"CDPTAB_IN_DOCKER"`

	ExtensionURL      null.String `json:"extensionUrl" envconfig:"CDPTAB_EXTENSION_URL"`
	LogCategoryFilter null.String `json:"logCategoryFilter" envconfig:"CDPTAB_LOG_CATEGORY_FILTER"`
}

// NewBrowserConfig returns the default layer.
func NewBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Backend:        null.NewString(BackendCDP, false),
		DebugPort:      null.NewInt(DefaultDebugPort, false),
		StartupTimeout: null.NewInt(int64(DefaultStartupTimeout/time.Second), false),
		ExtensionURL:   null.NewString(DefaultExtensionURL, false),
	}
}

// Apply saves the set values of cfg in the receiver and returns the result.
//
//nolint:cyclop
func (c BrowserConfig) Apply(cfg BrowserConfig) BrowserConfig {
	if cfg.Backend.Valid && cfg.Backend.String != "" {
		c.Backend = cfg.Backend
	}
	if cfg.BinaryPath.Valid {
		c.BinaryPath = cfg.BinaryPath
	}
	if cfg.Headless.Valid {
		c.Headless = cfg.Headless
	}
	if cfg.DisableSecurity.Valid {
		c.DisableSecurity = cfg.DisableSecurity
	}
	if cfg.DeterministicRendering.Valid {
		c.DeterministicRendering = cfg.DeterministicRendering
	}
	if cfg.KeepAlive.Valid {
		c.KeepAlive = cfg.KeepAlive
	}
	if cfg.ExtraArgs != nil {
		c.ExtraArgs = cfg.ExtraArgs
	}
	if cfg.TargetTabURL.Valid {
		c.TargetTabURL = cfg.TargetTabURL
	}
	if cfg.DebugPort.Valid {
		c.DebugPort = cfg.DebugPort
	}
	if cfg.StartupTimeout.Valid {
		c.StartupTimeout = cfg.StartupTimeout
	}
	if cfg.UserDataDir.Valid {
		c.UserDataDir = cfg.UserDataDir
	}
	if cfg.InDocker.Valid {
		c.InDocker = cfg.InDocker
	}
	if cfg.ExtensionURL.Valid && cfg.ExtensionURL.String != "" {
		c.ExtensionURL = cfg.ExtensionURL
	}
	if cfg.LogCategoryFilter.Valid {
		c.LogCategoryFilter = cfg.LogCategoryFilter
	}
	return c
}

// BrowserConfigFromEnv reads the CDPTAB_* variables through lookup.
func BrowserConfigFromEnv(lookup env.LookupFunc) (BrowserConfig, error) {
	var cfg BrowserConfig
	if err := envconfig.Process("", &cfg, lookup); err != nil {
		return cfg, fmt.Errorf("parsing browser environment variables: %w", err)
	}
	return cfg, nil
}

// BrowserConfigFromJSON decodes a JSON config file layer. Unknown keys are
// rejected so typos surface early.
func BrowserConfigFromJSON(data []byte) (BrowserConfig, error) {
	var cfg BrowserConfig
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing browser config: %w", err)
	}
	return cfg, nil
}

// BrowserOptions is the resolved, validated configuration a controller is
// built from.
type BrowserOptions struct {
	Backend                string
	BinaryPath             string
	Headless               bool
	DisableSecurity        bool
	DeterministicRendering bool
	KeepAlive              bool
	ExtraArgs              []string
	TargetTabURL           string
	DebugPort              int
	StartupTimeout         time.Duration
	UserDataDir            string
	InDocker               bool
	ExtensionURL           string
	LogCategoryFilter      string
}

// NewBrowserOptions returns the options of the default config layer.
func NewBrowserOptions() *BrowserOptions {
	opts, err := NewBrowserConfig().Options(env.ConstLookup(nil))
	if err != nil {
		panic(fmt.Sprintf("default browser config is invalid: %v", err))
	}
	return opts
}

// Options resolves the config into BrowserOptions. The legacy IN_DOCKER
// variable is read through lookup when InDocker is unset.
func (c BrowserConfig) Options(lookup env.LookupFunc) (*BrowserOptions, error) {
	opts := &BrowserOptions{
		Backend:                c.Backend.String,
		BinaryPath:             c.BinaryPath.String,
		Headless:               c.Headless.Bool,
		DisableSecurity:        c.DisableSecurity.Bool,
		DeterministicRendering: c.DeterministicRendering.Bool,
		KeepAlive:              c.KeepAlive.Bool,
		ExtraArgs:              append([]string(nil), c.ExtraArgs...),
		TargetTabURL:           c.TargetTabURL.String,
		DebugPort:              int(c.DebugPort.Int64),
		StartupTimeout:         time.Duration(c.StartupTimeout.Int64) * time.Second,
		UserDataDir:            c.UserDataDir.String,
		InDocker:               c.InDocker.Bool,
		ExtensionURL:           c.ExtensionURL.String,
		LogCategoryFilter:      c.LogCategoryFilter.String,
	}
	if !c.InDocker.Valid && lookup != nil {
		opts.InDocker = env.IsContainerized(lookup)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks the options for values a controller cannot work with.
func (o *BrowserOptions) Validate() error {
	switch o.Backend {
	case BackendCDP, BackendPlaywright, BackendExtension:
	default:
		return fmt.Errorf("unknown backend %q, expected one of %s, %s or %s",
			o.Backend, BackendCDP, BackendPlaywright, BackendExtension)
	}
	if o.DebugPort < 1 || o.DebugPort > 65535 {
		return fmt.Errorf("debug port %d is out of range", o.DebugPort)
	}
	if o.StartupTimeout <= 0 {
		return fmt.Errorf("startup timeout must be positive, got %s", o.StartupTimeout)
	}
	return nil
}

// Clone returns a deep copy of the options.
func (o *BrowserOptions) Clone() *BrowserOptions {
	c := *o
	c.ExtraArgs = append([]string(nil), o.ExtraArgs...)
	return &c
}
