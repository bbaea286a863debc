package config

import (
	"os"
	"sort"
	"time"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

// Config is the resolved runtime configuration for the nudge service.
type Config struct {
	Timezone               string         `yaml:"timezone"`
	CheckIntervalSeconds   int            `yaml:"check_interval_seconds"`
	MeetingReminderMinutes int            `yaml:"meeting_reminder_minutes"`
	QuietHours             QuietHours     `yaml:"quiet_hours"`
	RetentionDays          int            `yaml:"retention_days"`
	RetryFailedNudges      bool           `yaml:"retry_failed_nudges"`
	IDStrategy             string         `yaml:"id_strategy"`
	Users                  []string       `yaml:"users"`
	Storage                StorageConfig  `yaml:"storage"`
	HTTP                   HTTPConfig     `yaml:"http"`
	Log                    LogConfig      `yaml:"log"`
	Delivery               DeliveryConfig `yaml:"delivery"`
	Calendar               CalendarConfig `yaml:"calendar"`
	Lark                   LarkConfig     `yaml:"lark"`
	Telegram               TelegramConfig `yaml:"telegram"`
}

// QuietHours is the default hold window. Start == End disables it.
type QuietHours struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// StorageConfig locates reminder snapshots.
type StorageConfig struct {
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
}

// HTTPConfig configures the API listener. An empty Addr disables it.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RouteConfig maps one user to a chat on a channel.
type RouteConfig struct {
	Channel string `yaml:"channel"`
	ChatID  string `yaml:"chat_id"`
}

// DeliveryConfig selects where messages go.
type DeliveryConfig struct {
	DefaultChannel string                 `yaml:"default_channel"`
	Routes         map[string]RouteConfig `yaml:"routes"`
}

// CalendarConfig selects the upcoming-events provider: "lark", "file" or "none".
type CalendarConfig struct {
	Provider string `yaml:"provider"`
	File     string `yaml:"file"`
}

// LarkConfig holds Lark app credentials and per-user calendar ids.
type LarkConfig struct {
	AppID          string            `yaml:"app_id"`
	AppSecret      string            `yaml:"app_secret"`
	BaseDomain     string            `yaml:"base_domain"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	CalendarIDs    map[string]string `yaml:"calendar_ids"`
}

// Enabled reports whether credentials are present.
func (c LarkConfig) Enabled() bool {
	return c.AppID != "" && c.AppSecret != ""
}

// TelegramConfig holds the bot token.
type TelegramConfig struct {
	BotToken          string  `yaml:"bot_token"`
	APIEndpoint       string  `yaml:"api_endpoint"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
}

// Enabled reports whether a token is present.
func (c TelegramConfig) Enabled() bool {
	return c.BotToken != ""
}

// CheckInterval returns the tick period.
func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	path     string
	sources  map[string]ValueSource
	loadedAt time.Time
}

// Path returns the config file that was read, if any.
func (m Metadata) Path() string { return m.path }

// Source returns where field came from.
func (m Metadata) Source(field string) ValueSource {
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// Fields lists every field that did not come from defaults.
func (m Metadata) Fields() []string {
	out := make([]string, 0, len(m.sources))
	for field := range m.sources {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// LoadedAt returns the load timestamp.
func (m Metadata) LoadedAt() time.Time { return m.loadedAt }

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// DefaultEnvLookup reads the process environment.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Option customizes Load.
type Option func(*loadOptions)

type loadOptions struct {
	configPath string
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	overrides  []func(*Config)
}

// WithConfigPath reads the given file instead of the resolved default.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithEnv replaces the environment lookup.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		if lookup != nil {
			o.envLookup = lookup
		}
	}
}

// WithFileReader replaces os.ReadFile.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		if read != nil {
			o.readFile = read
		}
	}
}

// WithHomeDir replaces os.UserHomeDir.
func WithHomeDir(home func() (string, error)) Option {
	return func(o *loadOptions) {
		if home != nil {
			o.homeDir = home
		}
	}
}

// WithOverride applies fn after file and environment, e.g. for CLI flags.
func WithOverride(fn func(*Config)) Option {
	return func(o *loadOptions) {
		if fn != nil {
			o.overrides = append(o.overrides, fn)
		}
	}
}
