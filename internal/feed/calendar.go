package feed

import (
	"time"
)

// StaticCalendar maps symbols to a fixed expiry date. Good enough for
// a single session; live deployments swap in a venue-backed calendar.
type StaticCalendar struct {
	Expiries map[string]time.Time
}

func (c *StaticCalendar) ExpiryFor(symbol string) (time.Time, bool) {
	exp, ok := c.Expiries[symbol]
	return exp, ok
}

// SameDayCalendar returns today's date for every listed symbol: the
// 0DTE case. Weekends yield no expiry.
type SameDayCalendar struct {
	Symbols []string
	Now     func() time.Time
}

func (c *SameDayCalendar) ExpiryFor(symbol string) (time.Time, bool) {
	found := false
	for _, s := range c.Symbols {
		if s == symbol {
			found = true
			break
		}
	}
	if !found {
		return time.Time{}, false
	}
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	wd := now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return time.Time{}, false
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
}
