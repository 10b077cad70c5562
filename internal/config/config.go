package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/extension/security"
	"github.com/dshills/exthost/internal/logging"
)

const (
	// AppName is the application name used for directories and the
	// environment prefix.
	AppName = "exthost"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "config"
	// EnvPrefix prefixes environment overrides, e.g. EXTHOST_LOG_LEVEL.
	EnvPrefix = "EXTHOST"
)

// Config is the host configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	App        AppConfig        `mapstructure:"app"`
	Extensions ExtensionsConfig `mapstructure:"extensions"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Policy     PolicyConfig     `mapstructure:"policy"`
}

// LogConfig configures the host logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AppConfig is the identity reported to extensions through env.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Root     string `mapstructure:"root"`
	Language string `mapstructure:"language"`
}

// ExtensionsConfig controls discovery and lifecycle timing.
type ExtensionsConfig struct {
	Paths               []string      `mapstructure:"paths"`
	StorageRoot         string        `mapstructure:"storage_root"`
	HostVersion         string        `mapstructure:"host_version"`
	ActivationTimeout   time.Duration `mapstructure:"activation_timeout"`
	DeactivationTimeout time.Duration `mapstructure:"deactivation_timeout"`
}

// WorkspaceConfig lists the workspace roots and the settings extensions
// read through workspace.getConfiguration.
type WorkspaceConfig struct {
	Folders  []string       `mapstructure:"folders"`
	Settings map[string]any `mapstructure:"settings"`
}

// PolicyConfig holds the default sandbox policy and per-extension
// overrides.
type PolicyConfig struct {
	Default   PolicyRule       `mapstructure:"default"`
	Overrides []PolicyOverride `mapstructure:"overrides"`
}

// PolicyRule describes a sandbox policy. Unset fields inherit from the
// policy the rule is applied to.
type PolicyRule struct {
	AllowedGroups      []string `mapstructure:"allowed_groups"`
	DeniedModules      []string `mapstructure:"denied_modules"`
	MemoryCeilingBytes *uint64  `mapstructure:"memory_ceiling_bytes"`
	CPUSharePercent    *float64 `mapstructure:"cpu_share_percent"`
	CallsPerSecond     *float64 `mapstructure:"calls_per_second"`
	CallBurst          *int     `mapstructure:"call_burst"`
}

// PolicyOverride applies a rule to one extension on top of the default.
type PolicyOverride struct {
	Extension  string `mapstructure:"extension"`
	PolicyRule `mapstructure:",squash"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: string(logging.FormatText),
		},
		App: AppConfig{
			Name:     AppName,
			Language: "en",
		},
		Extensions: ExtensionsConfig{
			Paths:               extension.DefaultExtensionPaths(),
			HostVersion:         extension.DefaultHostVersion,
			ActivationTimeout:   extension.DefaultActivationTimeout,
			DeactivationTimeout: extension.DefaultDeactivationTimeout,
		},
		Workspace: WorkspaceConfig{
			Settings: map[string]any{},
		},
	}
}

// Dir returns the user configuration directory, $XDG_CONFIG_HOME/exthost
// or its platform equivalent.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// LoadOptions selects where configuration is read from.
type LoadOptions struct {
	// ConfigFile is used exclusively when set and must exist.
	ConfigFile string
	// SearchPaths override the directories searched for config.{yaml,json,toml}.
	// Empty means the user config directory and ./.exthost.
	SearchPaths []string
	// Logger receives reload diagnostics.
	Logger *log.Logger
}

// Loader reads configuration through a dedicated viper instance and can
// watch the file it read for changes.
type Loader struct {
	v      *viper.Viper
	opts   LoadOptions
	logger *log.Logger

	mu      sync.Mutex
	current *Config
}

// NewLoader creates a loader. Nothing is read until Load.
func NewLoader(opts LoadOptions) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loader{v: viper.New(), opts: opts, logger: logger}
}

// Load reads configuration from defaults, the config file and the
// environment, in increasing precedence, and validates the result.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return NewLoader(opts).Load(ctx)
}

// Load reads and validates the configuration.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := l.v
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := l.readFile(); err != nil {
		return nil, err
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) readFile() error {
	v := l.v
	if l.opts.ConfigFile != "" {
		if _, err := os.Stat(l.opts.ConfigFile); err != nil {
			return fmt.Errorf("%w: %s", ErrFileNotFound, l.opts.ConfigFile)
		}
		v.SetConfigFile(l.opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return &ParseError{Path: l.opts.ConfigFile, Err: err}
		}
		return nil
	}

	paths := l.opts.SearchPaths
	if len(paths) == 0 {
		if dir, err := Dir(); err == nil {
			paths = append(paths, dir)
		}
		paths = append(paths, ".exthost")
	}
	v.SetConfigName(ConfigFileName)
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return &ParseError{Path: v.ConfigFileUsed(), Err: err}
	}
	return nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, &ParseError{Path: l.v.ConfigFileUsed(), Err: err}
	}
	if cfg.Workspace.Settings == nil {
		cfg.Workspace.Settings = map[string]any{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetLogger replaces the logger used for reload diagnostics.
func (l *Loader) SetLogger(logger *log.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// FileUsed returns the config file that was read, or "".
func (l *Loader) FileUsed() string { return l.v.ConfigFileUsed() }

// Current returns the most recently loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Watch reloads the configuration whenever the config file changes and
// calls fn with the new value. A reload that fails validation is logged
// and the previous configuration stays current. Watch does nothing when
// no file was read.
func (l *Loader) Watch(fn func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			l.logger.Warn("config reload rejected", "file", e.Name, "error", err)
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		l.logger.Info("config reloaded", "file", e.Name)
		fn(cfg)
	})
	l.v.WatchConfig()
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.root", d.App.Root)
	v.SetDefault("app.language", d.App.Language)
	v.SetDefault("extensions.paths", d.Extensions.Paths)
	v.SetDefault("extensions.storage_root", d.Extensions.StorageRoot)
	v.SetDefault("extensions.host_version", d.Extensions.HostVersion)
	v.SetDefault("extensions.activation_timeout", d.Extensions.ActivationTimeout)
	v.SetDefault("extensions.deactivation_timeout", d.Extensions.DeactivationTimeout)
	v.SetDefault("workspace.folders", d.Workspace.Folders)
	v.SetDefault("policy.default.allowed_groups", groupNames(security.AllGroups()))
	v.SetDefault("policy.default.denied_modules", security.DefaultDeniedModules)
	v.SetDefault("policy.default.memory_ceiling_bytes", security.DefaultMemoryCeilingBytes)
	v.SetDefault("policy.default.cpu_share_percent", security.DefaultCPUSharePercent)
	v.SetDefault("policy.default.calls_per_second", security.DefaultCallsPerSecond)
	v.SetDefault("policy.default.call_burst", security.DefaultCallBurst)
}

func groupNames(groups []security.Group) []string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = string(g)
	}
	return names
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var problems []*ValidationError
	add := func(field, format string, args ...any) {
		problems = append(problems, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "unknown level %q", c.Log.Level)
	}
	switch logging.Format(c.Log.Format) {
	case logging.FormatText, logging.FormatJSON, logging.FormatLogfmt:
	default:
		add("log.format", "unknown format %q", c.Log.Format)
	}

	if c.Extensions.ActivationTimeout <= 0 {
		add("extensions.activation_timeout", "must be positive")
	}
	if c.Extensions.DeactivationTimeout <= 0 {
		add("extensions.deactivation_timeout", "must be positive")
	}
	if _, err := semver.StrictNewVersion(c.Extensions.HostVersion); err != nil {
		add("extensions.host_version", "%v", err)
	}

	for i, f := range c.Workspace.Folders {
		if strings.TrimSpace(f) == "" {
			add(fmt.Sprintf("workspace.folders[%d]", i), "empty path")
		}
	}

	if _, err := c.Policy.Default.apply(security.DefaultPolicy()); err != nil {
		add("policy.default", "%v", err)
	}
	seen := make(map[string]bool, len(c.Policy.Overrides))
	for i, o := range c.Policy.Overrides {
		field := fmt.Sprintf("policy.overrides[%d]", i)
		if o.Extension == "" {
			add(field, "extension id required")
			continue
		}
		if seen[o.Extension] {
			add(field, "duplicate override for %q", o.Extension)
		}
		seen[o.Extension] = true
		if _, err := o.apply(security.DefaultPolicy()); err != nil {
			add(field, "%v", err)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationErrors{Errors: problems}
}

// apply returns base with the rule's set fields replaced.
func (r PolicyRule) apply(base security.Policy) (security.Policy, error) {
	var opts []security.PolicyOption
	if r.AllowedGroups != nil {
		groups, err := security.ParseGroups(r.AllowedGroups)
		if err != nil {
			return security.Policy{}, err
		}
		opts = append(opts, security.WithAllowedGroups(groups...))
	}
	if r.DeniedModules != nil {
		opts = append(opts, security.WithDeniedModules(r.DeniedModules...))
	}
	if r.MemoryCeilingBytes != nil {
		opts = append(opts, security.WithMemoryCeiling(*r.MemoryCeilingBytes))
	}
	if r.CPUSharePercent != nil {
		opts = append(opts, security.WithCPUShare(*r.CPUSharePercent))
	}
	if r.CallsPerSecond != nil || r.CallBurst != nil {
		rate, burst := base.CallsPerSecond(), base.CallBurst()
		if r.CallsPerSecond != nil {
			rate = *r.CallsPerSecond
		}
		if r.CallBurst != nil {
			burst = *r.CallBurst
		}
		opts = append(opts, security.WithCallRate(rate, burst))
	}

	p := base.With(opts...)
	if err := p.Validate(); err != nil {
		return security.Policy{}, err
	}
	return p, nil
}

// DefaultPolicy builds the sandbox policy applied to extensions without
// an override.
func (c *Config) DefaultPolicy() (security.Policy, error) {
	return c.Policy.Default.apply(security.DefaultPolicy())
}

// Policies returns the per-extension policies, each the default policy
// with the override applied.
func (c *Config) Policies() (map[string]security.Policy, error) {
	def, err := c.DefaultPolicy()
	if err != nil {
		return nil, err
	}
	out := make(map[string]security.Policy, len(c.Policy.Overrides))
	for _, o := range c.Policy.Overrides {
		p, err := o.apply(def)
		if err != nil {
			return nil, fmt.Errorf("policy for %s: %w", o.Extension, err)
		}
		out[o.Extension] = p
	}
	return out, nil
}

// FlatSettings returns the workspace settings keyed by dotted path, the
// shape the workspace configuration view reads. Keys are lower case.
func (c *Config) FlatSettings() map[string]any {
	out := make(map[string]any)
	flatten("", c.Workspace.Settings, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := m[k].(map[string]any); ok && len(nested) > 0 {
			flatten(key, nested, out)
			continue
		}
		out[key] = m[k]
	}
}

// SettingsDelta returns the flattened workspace settings that differ
// between old and next. Keys missing from next map to nil.
func SettingsDelta(old, next *Config) map[string]any {
	before, after := old.FlatSettings(), next.FlatSettings()
	delta := make(map[string]any)
	for k, v := range after {
		if prev, ok := before[k]; !ok || !reflect.DeepEqual(prev, v) {
			delta[k] = v
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			delta[k] = nil
		}
	}
	return delta
}
