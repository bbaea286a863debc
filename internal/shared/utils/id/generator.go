// Package id generates prefixed, sortable identifiers.
package id

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyKSUID generates lexicographically sortable identifiers using KSUID.
	StrategyKSUID Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
)

var defaultGenerator = &Generator{strategy: StrategyKSUID}

// Generator produces identifiers with a stable display prefix.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// ParseStrategy maps a config value ("ksuid", "uuidv7") to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ksuid":
		return StrategyKSUID, nil
	case "uuid", "uuidv7":
		return StrategyUUIDv7, nil
	default:
		return StrategyKSUID, fmt.Errorf("unknown id strategy %q", name)
	}
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.mu.Lock()
	defaultGenerator.strategy = strategy
	defaultGenerator.mu.Unlock()
}

// NewReminderID generates a reminder identifier ("rem-<body>").
func NewReminderID() string {
	return defaultGenerator.New("rem")
}

// New returns "<prefix>-<body>" using the generator's strategy.
func (g *Generator) New(prefix string) string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	var body string
	if strategy == StrategyUUIDv7 {
		if v7, err := uuid.NewV7(); err == nil {
			body = v7.String()
		}
	}
	if body == "" {
		body = ksuid.New().String()
	}
	return fmt.Sprintf("%s-%s", prefix, body)
}
