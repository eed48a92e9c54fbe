package scheduler

import (
	"time"

	"github.com/hqmon/argusd/internal/model"
)

// Eligible reports whether a timing definition permits execution at now.
// lastExecution is the previous successful run, nil when the configuration
// has never fired; only interval timing consults it.
func Eligible(t model.TimingDefinition, now time.Time, lastExecution *time.Time) bool {
	switch t.Kind {
	case model.TimingAlways:
		return true
	case model.TimingDateSpan:
		if t.StartDate == nil || t.EndDate == nil {
			return false
		}
		return !now.Before(*t.StartDate) && !now.After(*t.EndDate)
	case model.TimingDaily:
		return inDailyWindow(t, now)
	case model.TimingWeekdays:
		return weekdayIn(t.Weekdays, now.Weekday()) && inDailyWindow(t, now)
	case model.TimingInterval:
		if lastExecution == nil {
			return true
		}
		return now.Sub(*lastExecution) >= t.Interval()
	}
	return false
}

// NextEligible returns the earliest instant at or after `after` at which the
// timing definition would be eligible, or nil when there is no such instant.
// Stamped onto configurations for the status surface.
func NextEligible(t model.TimingDefinition, after time.Time, lastExecution *time.Time) *time.Time {
	switch t.Kind {
	case model.TimingAlways:
		return &after
	case model.TimingDateSpan:
		if t.StartDate == nil || t.EndDate == nil {
			return nil
		}
		if after.Before(*t.StartDate) {
			return t.StartDate
		}
		if !after.After(*t.EndDate) {
			return &after
		}
		return nil
	case model.TimingInterval:
		if lastExecution == nil {
			return &after
		}
		next := lastExecution.Add(t.Interval())
		if next.Before(after) {
			return &after
		}
		return &next
	case model.TimingDaily, model.TimingWeekdays:
		return nextWindowInstant(t, after)
	}
	return nil
}

// inDailyWindow checks the time-of-day window at minute resolution, both
// bounds inclusive. A window whose end precedes its start crosses midnight.
func inDailyWindow(t model.TimingDefinition, now time.Time) bool {
	start, ok := minutesOfDay(t.StartTime)
	if !ok {
		return false
	}
	end, ok := minutesOfDay(t.EndTime)
	if !ok {
		return false
	}
	tod := now.Hour()*60 + now.Minute()
	if start <= end {
		return tod >= start && tod <= end
	}
	return tod >= start || tod <= end
}

func weekdayIn(days []time.Weekday, d time.Weekday) bool {
	for _, day := range days {
		if day == d {
			return true
		}
	}
	return false
}

func minutesOfDay(s string) (int, bool) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return parsed.Hour()*60 + parsed.Minute(), true
}

// nextWindowInstant finds the earliest instant at or after `after` inside
// the configured window and weekday set. Eight days cover every weekday
// combination, so a nil result means the definition is malformed.
func nextWindowInstant(t model.TimingDefinition, after time.Time) *time.Time {
	start, ok := minutesOfDay(t.StartTime)
	if !ok {
		return nil
	}

	if Eligible(t, after, nil) {
		return &after
	}
	for day := 0; day <= 7; day++ {
		d := after.AddDate(0, 0, day)
		candidate := time.Date(d.Year(), d.Month(), d.Day(), start/60, start%60, 0, 0, after.Location())
		if candidate.Before(after) {
			continue
		}
		if Eligible(t, candidate, nil) {
			return &candidate
		}
	}
	return nil
}
