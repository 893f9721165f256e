package engine

import (
	"fmt"
	"time"

	"github.com/funnelkit/journey/model"
)

const defaultWindowStartHour = 9
const defaultWindowEndHour = 17

// ComputeWake resolves a delay step's wake time relative to now.
func ComputeWake(cfg *model.DelayConfig, now time.Time) (time.Time, error) {
	switch cfg.Kind {
	case model.DELAY_DURATION:
		return now.Add(time.Duration(cfg.Seconds) * time.Second), nil
	case model.DELAY_UNTIL:
		if cfg.Until == nil {
			return time.Time{}, fmt.Errorf("delay until: no date")
		}
		return *cfg.Until, nil
	case model.DELAY_BUSINESS_DAYS:
		return nextBusinessWake(cfg, now), nil
	case model.DELAY_DAY_OF_WEEK:
		return nextWeekdayWake(cfg, now), nil
	}
	return time.Time{}, fmt.Errorf("unknown delay kind %q", cfg.Kind)
}

func isBusinessDay(t time.Time) bool {
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}

// nextBusinessWake advances the configured number of business days
// (Mon-Fri), then wakes at the start of the business window. Days=0 means
// the next open window: immediately when already inside one.
func nextBusinessWake(cfg *model.DelayConfig, now time.Time) time.Time {
	startHour := cfg.WindowStartHour
	if startHour == 0 {
		startHour = defaultWindowStartHour
	}
	endHour := cfg.WindowEndHour
	if endHour == 0 {
		endHour = defaultWindowEndHour
	}
	if cfg.Days == 0 {
		if isBusinessDay(now) && now.Hour() >= startHour && now.Hour() < endHour {
			return now
		}
		d := now
		if now.Hour() >= endHour || !isBusinessDay(now) {
			d = d.AddDate(0, 0, 1)
		}
		for !isBusinessDay(d) {
			d = d.AddDate(0, 0, 1)
		}
		return time.Date(d.Year(), d.Month(), d.Day(), startHour, 0, 0, 0, now.Location())
	}
	d := now
	for i := 0; i < cfg.Days; i++ {
		d = d.AddDate(0, 0, 1)
		for !isBusinessDay(d) {
			d = d.AddDate(0, 0, 1)
		}
	}
	return time.Date(d.Year(), d.Month(), d.Day(), startHour, 0, 0, 0, now.Location())
}

// nextWeekdayWake finds the next day matching one of the configured
// weekdays, waking at Hour:Minute. Today counts when that time is still
// ahead.
func nextWeekdayWake(cfg *model.DelayConfig, now time.Time) time.Time {
	matches := func(d time.Weekday) bool {
		for _, w := range cfg.Weekdays {
			if w == d {
				return true
			}
		}
		return false
	}
	for offset := 0; offset <= 7; offset++ {
		d := now.AddDate(0, 0, offset)
		if !matches(d.Weekday()) {
			continue
		}
		wake := time.Date(d.Year(), d.Month(), d.Day(), cfg.Hour, cfg.Minute, 0, 0, now.Location())
		if wake.After(now) {
			return wake
		}
	}
	// unreachable when Weekdays is non-empty; validated at publish
	return now
}
