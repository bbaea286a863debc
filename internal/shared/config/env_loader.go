package config

import (
	"fmt"
	"strconv"
	"strings"
)

func applyEnv(cfg *Config, meta *Metadata, opts loadOptions) error {
	lookup := opts.envLookup
	if lookup == nil {
		lookup = DefaultEnvLookup
	}

	setString := func(key, field string, dst *string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*dst = strings.TrimSpace(value)
			meta.sources[field] = SourceEnv
		}
	}
	setInt := func(key, field string, dst *int) error {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = parsed
		meta.sources[field] = SourceEnv
		return nil
	}

	setString("NUDGE_TIMEZONE", "timezone", &cfg.Timezone)
	setString("NUDGE_STORAGE_PATH", "storage.path", &cfg.Storage.Path)
	setString("NUDGE_HTTP_ADDR", "http.addr", &cfg.HTTP.Addr)
	setString("NUDGE_LOG_LEVEL", "log.level", &cfg.Log.Level)
	setString("NUDGE_LOG_FORMAT", "log.format", &cfg.Log.Format)
	setString("NUDGE_ID_STRATEGY", "id_strategy", &cfg.IDStrategy)
	setString("NUDGE_DEFAULT_CHANNEL", "delivery.default_channel", &cfg.Delivery.DefaultChannel)
	setString("NUDGE_CALENDAR_PROVIDER", "calendar.provider", &cfg.Calendar.Provider)
	setString("NUDGE_CALENDAR_FILE", "calendar.file", &cfg.Calendar.File)
	setString("LARK_APP_ID", "lark.app_id", &cfg.Lark.AppID)
	setString("LARK_APP_SECRET", "lark.app_secret", &cfg.Lark.AppSecret)
	setString("TELEGRAM_BOT_TOKEN", "telegram.bot_token", &cfg.Telegram.BotToken)

	for _, entry := range []struct {
		key   string
		field string
		dst   *int
	}{
		{"NUDGE_CHECK_INTERVAL_SECONDS", "check_interval_seconds", &cfg.CheckIntervalSeconds},
		{"NUDGE_MEETING_REMINDER_MINUTES", "meeting_reminder_minutes", &cfg.MeetingReminderMinutes},
		{"NUDGE_QUIET_HOURS_START", "quiet_hours.start", &cfg.QuietHours.Start},
		{"NUDGE_QUIET_HOURS_END", "quiet_hours.end", &cfg.QuietHours.End},
		{"NUDGE_RETENTION_DAYS", "retention_days", &cfg.RetentionDays},
	} {
		if err := setInt(entry.key, entry.field, entry.dst); err != nil {
			return err
		}
	}

	if value, ok := lookup("NUDGE_RETRY_FAILED_NUDGES"); ok && strings.TrimSpace(value) != "" {
		parsed, err := parseBoolEnv(value)
		if err != nil {
			return fmt.Errorf("parse NUDGE_RETRY_FAILED_NUDGES: %w", err)
		}
		cfg.RetryFailedNudges = parsed
		meta.sources["retry_failed_nudges"] = SourceEnv
	}
	if value, ok := lookup("NUDGE_USERS"); ok && strings.TrimSpace(value) != "" {
		cfg.Users = splitList(value)
		meta.sources["users"] = SourceEnv
	}
	return nil
}

func parseBoolEnv(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", value)
	}
}

func splitList(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
