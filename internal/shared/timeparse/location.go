package timeparse

import (
	"strings"
	"sync"
	"time"
)

// DefaultTimezone is used when no zone is configured.
const DefaultTimezone = "UTC"

var locationCache sync.Map // zone name -> *time.Location

// Location resolves an IANA zone name, caching successful lookups. Empty and
// unknown names resolve to UTC; unknown names are not cached.
func Location(timezone string) *time.Location {
	name := strings.TrimSpace(timezone)
	if name == "" || strings.EqualFold(name, DefaultTimezone) {
		return time.UTC
	}
	if cached, ok := locationCache.Load(name); ok {
		return cached.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	locationCache.Store(name, loc)
	return loc
}

// IsKnownTimezone reports whether the zone name resolves to a real location.
func IsKnownTimezone(timezone string) bool {
	name := strings.TrimSpace(timezone)
	if name == "" || strings.EqualFold(name, DefaultTimezone) {
		return true
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
