package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// applyFile decodes the YAML config file on top of cfg. Keys absent from the
// file keep their current values. A missing file is not an error.
func applyFile(cfg *Config, meta *Metadata, options loadOptions) error {
	configPath := strings.TrimSpace(options.configPath)
	explicit := configPath != ""
	if configPath == "" {
		configPath, _ = ResolveConfigPath(options.envLookup, options.homeDir)
	}
	if configPath == "" {
		return nil
	}

	data, err := options.readFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	meta.path = configPath
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	for key := range keys {
		meta.sources[key] = SourceFile
	}

	expandConfigEnv(options.envLookup, cfg)
	return nil
}

// expandConfigEnv interpolates ${VAR} references in string fields.
func expandConfigEnv(lookup EnvLookup, cfg *Config) {
	cfg.Timezone = expandEnvValue(lookup, cfg.Timezone)
	cfg.IDStrategy = expandEnvValue(lookup, cfg.IDStrategy)
	for i, user := range cfg.Users {
		cfg.Users[i] = expandEnvValue(lookup, user)
	}
	cfg.Storage.Path = expandEnvValue(lookup, cfg.Storage.Path)
	cfg.HTTP.Addr = expandEnvValue(lookup, cfg.HTTP.Addr)
	for i, origin := range cfg.HTTP.AllowedOrigins {
		cfg.HTTP.AllowedOrigins[i] = expandEnvValue(lookup, origin)
	}
	cfg.Log.Level = expandEnvValue(lookup, cfg.Log.Level)
	cfg.Log.Format = expandEnvValue(lookup, cfg.Log.Format)
	cfg.Delivery.DefaultChannel = expandEnvValue(lookup, cfg.Delivery.DefaultChannel)
	for user, route := range cfg.Delivery.Routes {
		route.Channel = expandEnvValue(lookup, route.Channel)
		route.ChatID = expandEnvValue(lookup, route.ChatID)
		cfg.Delivery.Routes[user] = route
	}
	cfg.Calendar.Provider = expandEnvValue(lookup, cfg.Calendar.Provider)
	cfg.Calendar.File = expandEnvValue(lookup, cfg.Calendar.File)
	cfg.Lark.AppID = expandEnvValue(lookup, cfg.Lark.AppID)
	cfg.Lark.AppSecret = expandEnvValue(lookup, cfg.Lark.AppSecret)
	cfg.Lark.BaseDomain = expandEnvValue(lookup, cfg.Lark.BaseDomain)
	for user, cal := range cfg.Lark.CalendarIDs {
		cfg.Lark.CalendarIDs[user] = expandEnvValue(lookup, cal)
	}
	cfg.Telegram.BotToken = expandEnvValue(lookup, cfg.Telegram.BotToken)
	cfg.Telegram.APIEndpoint = expandEnvValue(lookup, cfg.Telegram.APIEndpoint)
}

// expandEnvValue replaces $VAR and ${VAR} with values from lookup. Unset
// variables expand to the empty string.
func expandEnvValue(lookup EnvLookup, value string) string {
	if !strings.Contains(value, "$") {
		return value
	}
	if lookup == nil {
		lookup = DefaultEnvLookup
	}
	return os.Expand(value, func(key string) string {
		v, _ := lookup(key)
		return v
	})
}
