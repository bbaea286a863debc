package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"nudge/internal/domain/reminder"
	"nudge/internal/shared/logging"
)

// Channel names understood by the router.
const (
	ChannelLark     = "lark"
	ChannelTelegram = "telegram"
	ChannelLog      = "log"
)

// ErrNoRoute is returned when a user has no delivery route.
var ErrNoRoute = errors.New("no delivery route")

// Messenger sends a text message to a chat on one channel.
type Messenger interface {
	Send(ctx context.Context, chatID, text string) error
}

// Route says where a user's notifications go.
type Route struct {
	Channel string `json:"channel" yaml:"channel"`
	ChatID  string `json:"chat_id" yaml:"chat_id"`
}

// Router implements reminder.Deliverer by mapping users to routes and
// routes to channel messengers. Errors propagate so that user reminders
// stay pending and are retried.
type Router struct {
	mu             sync.RWMutex
	routes         map[string]Route
	messengers     map[string]Messenger
	defaultChannel string
	logger         logging.Logger
}

// NewRouter creates an empty Router.
func NewRouter(logger logging.Logger) *Router {
	return &Router{
		routes:     make(map[string]Route),
		messengers: make(map[string]Messenger),
		logger:     logging.OrNop(logger),
	}
}

// Handle registers the messenger for a channel.
func (r *Router) Handle(channel string, m Messenger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messengers[normalizeChannel(channel)] = m
}

// SetRoute sets the route for a user.
func (r *Router) SetRoute(userID string, route Route) {
	route.Channel = normalizeChannel(route.Channel)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[userID] = route
}

// SetDefaultChannel routes users without an explicit route to channel,
// using the user id as the chat id. An empty channel disables the fallback.
func (r *Router) SetDefaultChannel(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultChannel = normalizeChannel(channel)
}

// Channels lists the registered channel names.
func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.messengers))
	for name := range r.messengers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deliver sends message to the user's route.
func (r *Router) Deliver(ctx context.Context, userID, message string, kind reminder.Kind, agentID string) error {
	route, messenger, err := r.resolve(userID)
	if err != nil {
		return err
	}
	if err := messenger.Send(ctx, route.ChatID, message); err != nil {
		return fmt.Errorf("deliver %s via %s: %w", kind, route.Channel, err)
	}
	if agentID != "" {
		r.logger.Debug("Scheduler: delivered %s message to %s via %s (agent %s)", kind, userID, route.Channel, agentID)
	} else {
		r.logger.Debug("Scheduler: delivered %s message to %s via %s", kind, userID, route.Channel)
	}
	return nil
}

func (r *Router) resolve(userID string) (Route, Messenger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[userID]
	if !ok {
		if r.defaultChannel == "" {
			return Route{}, nil, fmt.Errorf("%w for user %s", ErrNoRoute, userID)
		}
		route = Route{Channel: r.defaultChannel, ChatID: userID}
	}
	messenger, ok := r.messengers[route.Channel]
	if !ok || messenger == nil {
		return Route{}, nil, fmt.Errorf("%w: channel %q is not configured", ErrNoRoute, route.Channel)
	}
	if route.ChatID == "" {
		return Route{}, nil, fmt.Errorf("%w: empty chat id for user %s", ErrNoRoute, userID)
	}
	return route, messenger, nil
}

func normalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

// LogMessenger writes messages to the logger instead of a chat. Useful for
// local runs.
type LogMessenger struct {
	Logger logging.Logger
}

// Send logs the message.
func (m LogMessenger) Send(_ context.Context, chatID, text string) error {
	logging.OrNop(m.Logger).Info("Notification for %s: %s", chatID, text)
	return nil
}

// NopDeliverer drops every message. For tests or when delivery is disabled.
type NopDeliverer struct{}

// Deliver is a no-op.
func (NopDeliverer) Deliver(context.Context, string, string, reminder.Kind, string) error {
	return nil
}
