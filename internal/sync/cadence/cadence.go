// Package cadence computes when the next scheduled sync is due.
package cadence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
)

// DefaultSlots are the daily wall-clock times a sync is attempted.
var DefaultSlots = []string{"08:00", "14:00", "20:00"}

// Config describes a sync cadence.
type Config struct {
	// Slots are "HH:MM" times of day in Location.
	Slots []string
	// Cron is an optional standard five-field expression used in addition
	// to Slots.
	Cron string
	// Location defaults to time.Local.
	Location *time.Location
	// PollInterval, when positive, caps the wait between syncs.
	PollInterval time.Duration
}

// Cadence is a compiled Config. It is immutable and safe for concurrent use.
type Cadence struct {
	schedules []cron.Schedule
	loc       *time.Location
	poll      time.Duration
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New compiles cfg. An empty slot list with no cron expression falls back to
// DefaultSlots.
func New(cfg Config) (*Cadence, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	slots := cfg.Slots
	if len(slots) == 0 && cfg.Cron == "" {
		slots = DefaultSlots
	}

	c := &Cadence{loc: loc, poll: cfg.PollInterval}
	for _, slot := range slots {
		hour, minute, err := ParseSlot(slot)
		if err != nil {
			return nil, err
		}
		sched, err := parser.Parse(fmt.Sprintf("%d %d * * *", minute, hour))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "compile slot "+slot, err)
		}
		c.schedules = append(c.schedules, sched)
	}
	if cfg.Cron != "" {
		sched, err := parser.Parse(cfg.Cron)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "invalid cron expression", err)
		}
		c.schedules = append(c.schedules, sched)
	}
	return c, nil
}

// MustDefault returns the default cadence in loc.
func MustDefault(loc *time.Location) *Cadence {
	c, err := New(Config{Location: loc})
	if err != nil {
		panic(err)
	}
	return c
}

// ParseSlot parses an "HH:MM" time of day.
func ParseSlot(slot string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(slot), ":")
	if len(parts) != 2 {
		return 0, 0, apperrors.Newf(apperrors.ErrConfigInvalid, "slot %q is not HH:MM", slot)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, apperrors.Newf(apperrors.ErrConfigInvalid, "slot %q has an invalid hour", slot)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, apperrors.Newf(apperrors.ErrConfigInvalid, "slot %q has an invalid minute", slot)
	}
	return hour, minute, nil
}

// Next returns the earliest scheduled time strictly after now. A slot equal
// to now is not due again until the following day.
func (c *Cadence) Next(now time.Time) time.Time {
	local := now.In(c.loc)

	var next time.Time
	for _, s := range c.schedules {
		t := s.Next(local)
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	if c.poll > 0 {
		if t := now.Add(c.poll); next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}
