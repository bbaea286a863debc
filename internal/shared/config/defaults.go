package config

const (
	DefaultTimezone               = "UTC"
	DefaultCheckIntervalSeconds   = 60
	DefaultMeetingReminderMinutes = 15
	DefaultQuietHoursStart        = 22
	DefaultQuietHoursEnd          = 8
	DefaultRetentionDays          = 30
	DefaultStoragePath            = "~/.nudge/reminders"
	DefaultCacheSize              = 1024
	DefaultHTTPAddr               = ":8089"
	DefaultLogLevel               = "info"
	DefaultLogFormat              = "text"
	DefaultIDStrategy             = "ksuid"
	DefaultChannel                = "log"
	DefaultLarkTimeoutSeconds     = 10
)

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Timezone:               DefaultTimezone,
		CheckIntervalSeconds:   DefaultCheckIntervalSeconds,
		MeetingReminderMinutes: DefaultMeetingReminderMinutes,
		QuietHours:             QuietHours{Start: DefaultQuietHoursStart, End: DefaultQuietHoursEnd},
		RetentionDays:          DefaultRetentionDays,
		IDStrategy:             DefaultIDStrategy,
		Storage:                StorageConfig{Path: DefaultStoragePath, CacheSize: DefaultCacheSize},
		HTTP:                   HTTPConfig{Addr: DefaultHTTPAddr},
		Log:                    LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Delivery:               DeliveryConfig{DefaultChannel: DefaultChannel},
		Calendar:               CalendarConfig{Provider: "none"},
		Lark:                   LarkConfig{TimeoutSeconds: DefaultLarkTimeoutSeconds},
	}
}
