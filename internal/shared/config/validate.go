package config

import (
	"errors"
	"fmt"
	"strings"

	"nudge/internal/shared/timeparse"
	"nudge/internal/shared/utils/id"
)

// Validate reports every invalid field at once.
func Validate(cfg Config) error {
	var errs []error
	if cfg.CheckIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("check_interval_seconds must be positive, got %d", cfg.CheckIntervalSeconds))
	}
	if cfg.MeetingReminderMinutes <= 0 {
		errs = append(errs, fmt.Errorf("meeting_reminder_minutes must be positive, got %d", cfg.MeetingReminderMinutes))
	}
	if !validHour(cfg.QuietHours.Start) || !validHour(cfg.QuietHours.End) {
		errs = append(errs, fmt.Errorf("quiet_hours must be within 0-23, got %d-%d", cfg.QuietHours.Start, cfg.QuietHours.End))
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("retention_days must not be negative"))
	}
	if cfg.Storage.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("storage.cache_size must be positive"))
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		errs = append(errs, fmt.Errorf("storage.path is required"))
	}
	if !timeparse.IsKnownTimezone(cfg.Timezone) {
		errs = append(errs, fmt.Errorf("unknown timezone %q", cfg.Timezone))
	}
	if _, err := id.ParseStrategy(cfg.IDStrategy); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(cfg.Calendar.Provider) {
	case "", "none":
	case "lark":
		if !cfg.Lark.Enabled() {
			errs = append(errs, fmt.Errorf("calendar.provider lark requires lark.app_id and lark.app_secret"))
		}
	case "file":
		if strings.TrimSpace(cfg.Calendar.File) == "" {
			errs = append(errs, fmt.Errorf("calendar.provider file requires calendar.file"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown calendar.provider %q", cfg.Calendar.Provider))
	}
	return errors.Join(errs...)
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}
