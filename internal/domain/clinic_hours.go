package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay accepts "H:mm" and "HH:mm" in 24-hour notation.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hStr, mStr, ok := strings.Cut(s, ":")
	if !ok || len(hStr) == 0 || len(hStr) > 2 || len(mStr) != 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:mm", s)
	}
	h, err := strconv.Atoi(hStr)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time %q: hour out of range", s)
	}
	m, err := strconv.Atoi(mStr)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: minute out of range", s)
	}
	return NewTimeOfDay(h, m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// String renders the zero-padded 24-hour form, e.g. "09:00".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

// TimeRange is a half-open interval [Start, End) within a day.
type TimeRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (r TimeRange) Contains(t TimeOfDay) bool {
	return t >= r.Start && t < r.End
}

// ClinicHours is the weekly template slots are carved from.
type ClinicHours struct {
	WorkingDays []time.Weekday
	Open        TimeOfDay
	Close       TimeOfDay
	SlotMinutes int
	Lunch       *TimeRange
}

// DefaultClinicHours is Monday to Saturday, 08:00-18:00 in 30 minute slots
// with a 12:00-13:00 lunch break.
func DefaultClinicHours() ClinicHours {
	return ClinicHours{
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday,
		},
		Open:        NewTimeOfDay(8, 0),
		Close:       NewTimeOfDay(18, 0),
		SlotMinutes: 30,
		Lunch:       &TimeRange{Start: NewTimeOfDay(12, 0), End: NewTimeOfDay(13, 0)},
	}
}

var (
	ErrNoWorkingDays = errors.New("at least one working day is required")
	ErrInvalidHours  = errors.New("working hours start must be before end")
	ErrInvalidSlot   = errors.New("slot duration must be positive")
	ErrInvalidLunch  = errors.New("lunch break must start before it ends and fall within working hours")
)

func (h ClinicHours) Validate() error {
	if len(h.WorkingDays) == 0 {
		return ErrNoWorkingDays
	}
	for _, wd := range h.WorkingDays {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("invalid weekday %d", wd)
		}
	}
	if !h.Open.Valid() || !h.Close.Valid() || h.Open >= h.Close {
		return ErrInvalidHours
	}
	if h.SlotMinutes <= 0 {
		return ErrInvalidSlot
	}
	if h.Lunch != nil {
		l := *h.Lunch
		if l.Start >= l.End || l.Start < h.Open || l.End > h.Close {
			return ErrInvalidLunch
		}
	}
	return nil
}

func (h ClinicHours) WorksOn(wd time.Weekday) bool {
	for _, d := range h.WorkingDays {
		if d == wd {
			return true
		}
	}
	return false
}

// Fingerprint identifies an hours configuration; two values with the same
// fingerprint generate the same grid.
func (h ClinicHours) Fingerprint() string {
	days := make([]int, 0, len(h.WorkingDays))
	seen := make(map[time.Weekday]struct{}, len(h.WorkingDays))
	for _, wd := range h.WorkingDays {
		if _, ok := seen[wd]; ok {
			continue
		}
		seen[wd] = struct{}{}
		days = append(days, int(wd))
	}
	sort.Ints(days)

	var b strings.Builder
	for i, d := range days {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(d))
	}
	fmt.Fprintf(&b, "|%s-%s|%d", h.Open, h.Close, h.SlotMinutes)
	if h.Lunch != nil {
		fmt.Fprintf(&b, "|%s-%s", h.Lunch.Start, h.Lunch.End)
	}
	return b.String()
}

// ParseWeekdays parses a comma separated list of weekday indices (0=Sunday).
func ParseWeekdays(s string) ([]time.Weekday, error) {
	var out []time.Weekday
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("invalid weekday %q", part)
		}
		out = append(out, time.Weekday(n))
	}
	return out, nil
}
