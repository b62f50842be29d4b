// Package schedule maps reminder cadences to fire times in the configured timezone.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"learnbot/internal/models"

	"github.com/jmhodges/clock"
)

// ErrInvalidFrequency is returned for a cadence outside the recognised set
var ErrInvalidFrequency = errors.New("invalid frequency")

var frequencyDays = map[models.Frequency]int{
	models.FrequencyDaily:      1,
	models.FrequencyEvery2Days: 2,
	models.FrequencyEvery3Days: 3,
	models.FrequencyWeekly:     7,
	models.FrequencyBiweekly:   14,
	models.FrequencyMonthly:    30,
}

var frequencyLabels = map[models.Frequency]string{
	models.FrequencyDaily:      "Daily",
	models.FrequencyEvery2Days: "Every 2 Days",
	models.FrequencyEvery3Days: "Every 3 Days",
	models.FrequencyWeekly:     "Weekly",
	models.FrequencyBiweekly:   "Bi-weekly",
	models.FrequencyMonthly:    "Monthly",
}

// Days resolves a cadence to its interval in days
func Days(f models.Frequency) (int, error) {
	d, ok := frequencyDays[f]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, string(f))
	}
	return d, nil
}

// Valid reports whether f is one of the recognised cadences
func Valid(f models.Frequency) bool {
	_, ok := frequencyDays[f]
	return ok
}

// Label returns the human-readable cadence, or the raw value if unknown
func Label(f models.Frequency) string {
	if l, ok := frequencyLabels[f]; ok {
		return l
	}
	return string(f)
}

// Policy computes fire times. All reminders fire at the start of a calendar day in loc,
// so every user's items are swept in one batch per day.
type Policy struct {
	loc *time.Location
	clk clock.Clock
}

// NewPolicy creates a policy for the given timezone; a nil location means UTC
func NewPolicy(loc *time.Location, clk clock.Clock) *Policy {
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Policy{loc: loc, clk: clk}
}

// Location returns the configured timezone
func (p *Policy) Location() *time.Location {
	return p.loc
}

// Now returns the current time in the configured timezone
func (p *Policy) Now() time.Time {
	return p.clk.Now().In(p.loc)
}

// StartOfDay truncates t to 00:00 of its calendar day in the configured timezone
func (p *Policy) StartOfDay(t time.Time) time.Time {
	local := t.In(p.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.loc)
}

// NextFireAt adds the cadence's day count to from and truncates to day start
func (p *Policy) NextFireAt(f models.Frequency, from time.Time) (time.Time, error) {
	days, err := Days(f)
	if err != nil {
		return time.Time{}, err
	}
	return p.StartOfDay(from.In(p.loc).AddDate(0, 0, days)), nil
}

// NextFireFromNow is NextFireAt measured from the policy's clock
func (p *Policy) NextFireFromNow(f models.Frequency) (time.Time, error) {
	return p.NextFireAt(f, p.Now())
}
