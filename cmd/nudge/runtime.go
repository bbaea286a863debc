package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"nudge/internal/app/scheduler"
	"nudge/internal/domain/reminder"
	"nudge/internal/infra/calendarfile"
	"nudge/internal/infra/filestore"
	"nudge/internal/infra/lark"
	"nudge/internal/infra/observability"
	"nudge/internal/infra/reminderstore"
	"nudge/internal/infra/telegram"
	"nudge/internal/shared/config"
	"nudge/internal/shared/logging"
	"nudge/internal/shared/timeparse"
	"nudge/internal/shared/utils/id"
)

// runtime bundles the wired components for one command invocation.
type runtime struct {
	cfg     config.Config
	logger  logging.Logger
	store   *reminderstore.Store
	engine  *scheduler.Engine
	router  *scheduler.Router
	metrics *observability.MetricsCollector
	lock    *reminderstore.Lock
}

// newRuntime wires store and engine. Channel clients and the calendar are
// only built when withChannels is set; offline commands get a no-op
// deliverer.
func newRuntime(cfg config.Config, withChannels bool) (*runtime, error) {
	logging.Configure(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	logger := logging.NewComponentLogger("nudge")

	strategy, err := id.ParseStrategy(cfg.IDStrategy)
	if err != nil {
		return nil, err
	}
	id.SetStrategy(strategy)

	store, err := reminderstore.New(
		filestore.ResolvePath(cfg.Storage.Path, config.DefaultStoragePath),
		reminderstore.WithCacheSize(cfg.Storage.CacheSize),
		reminderstore.WithLogger(logging.NewComponentLogger("store")),
		reminderstore.WithDefaultSettings(reminder.Settings{
			MeetingReminderMinutes: cfg.MeetingReminderMinutes,
			Enabled:                true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("open reminder store: %w", err)
	}

	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: observability.NewMetricsCollector(withChannels),
	}

	var deliverer reminder.Deliverer = scheduler.NopDeliverer{}
	var calendar reminder.CalendarSource
	if withChannels {
		router, larkSource, err := buildRouter(cfg, logger)
		if err != nil {
			return nil, err
		}
		rt.router = router
		deliverer = router
		calendar, err = buildCalendar(cfg, larkSource, logger)
		if err != nil {
			return nil, err
		}
	}

	rt.engine = scheduler.New(engineConfig(cfg), store, deliverer, calendar,
		scheduler.WithLogger(logging.NewComponentLogger("scheduler")),
		scheduler.WithMetrics(rt.metrics),
	)
	return rt, nil
}

func engineConfig(cfg config.Config) scheduler.Config {
	return scheduler.Config{
		Timezone:          cfg.Timezone,
		CheckInterval:     cfg.CheckInterval(),
		QuietHours:        &reminder.QuietHours{Start: cfg.QuietHours.Start, End: cfg.QuietHours.End},
		RetentionDays:     cfg.RetentionDays,
		RetryFailedNudges: cfg.RetryFailedNudges,
	}
}

// buildRouter registers a messenger per configured channel plus the log
// channel. The Lark calendar source shares the Lark client when present.
func buildRouter(cfg config.Config, logger logging.Logger) (*scheduler.Router, *lark.CalendarSource, error) {
	router := scheduler.NewRouter(logging.NewComponentLogger("router"))
	router.Handle(scheduler.ChannelLog, scheduler.LogMessenger{Logger: logger})

	var larkSource *lark.CalendarSource
	if cfg.Lark.Enabled() {
		client, err := lark.NewClient(lark.Config{
			AppID:      cfg.Lark.AppID,
			AppSecret:  cfg.Lark.AppSecret,
			BaseDomain: cfg.Lark.BaseDomain,
			Timeout:    time.Duration(cfg.Lark.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		larkLogger := logging.NewComponentLogger("lark")
		router.Handle(scheduler.ChannelLark, lark.NewMessenger(client, larkLogger))
		larkSource = lark.NewCalendarSource(client, larkLogger, lark.WithCalendarIDs(cfg.Lark.CalendarIDs))
	}
	if cfg.Telegram.Enabled() {
		tg, err := telegram.NewMessenger(telegram.Config{
			BotToken:          cfg.Telegram.BotToken,
			APIEndpoint:       cfg.Telegram.APIEndpoint,
			MessagesPerSecond: cfg.Telegram.MessagesPerSecond,
		}, logging.NewComponentLogger("telegram"))
		if err != nil {
			return nil, nil, err
		}
		router.Handle(scheduler.ChannelTelegram, tg)
	}

	for userID, route := range cfg.Delivery.Routes {
		router.SetRoute(userID, scheduler.Route{Channel: route.Channel, ChatID: route.ChatID})
	}
	if ch := strings.TrimSpace(cfg.Delivery.DefaultChannel); ch != "" {
		router.SetDefaultChannel(ch)
	}
	return router, larkSource, nil
}

func buildCalendar(cfg config.Config, larkSource *lark.CalendarSource, logger logging.Logger) (reminder.CalendarSource, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Calendar.Provider)) {
	case "", "none":
		return nil, nil
	case "lark":
		if larkSource == nil {
			return nil, fmt.Errorf("calendar provider lark requires lark credentials")
		}
		return larkSource, nil
	case "file":
		src := calendarfile.New(cfg.Calendar.File,
			calendarfile.WithLocation(timeparse.Location(cfg.Timezone)),
			calendarfile.WithLogger(logging.NewComponentLogger("calendar")),
		)
		logger.Info("Calendar: reading events from %s", src.Path())
		return src, nil
	default:
		return nil, fmt.Errorf("unknown calendar provider %q", cfg.Calendar.Provider)
	}
}

// close flushes pending store writes and releases the store lock.
func (rt *runtime) close() {
	if err := rt.store.Flush(); err != nil {
		rt.logger.Error("Store: flush on exit failed: %v", err)
	}
	if err := rt.lock.Release(); err != nil {
		rt.logger.Warn("Store: %v", err)
	}
}
