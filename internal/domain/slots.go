package domain

import (
	"fmt"
	"time"
)

// Date is a calendar date without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD and rejects dates that do not exist.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight of d in UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

// DaysIn returns the number of days in the given month, leap years included.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

type TimeSlot struct {
	Date      Date
	Time      TimeOfDay
	Available bool
}

// SlotKey identifies a slot by its date and start time.
type SlotKey struct {
	Date Date
	Time TimeOfDay
}

func (s TimeSlot) Key() SlotKey {
	return SlotKey{Date: s.Date, Time: s.Time}
}

// GenerateMonthGrid returns every slot the clinic offers in the month, in
// date then time order, all marked available. It panics on an invalid month
// or invalid hours.
func GenerateMonthGrid(year int, month time.Month, hours ClinicHours) []TimeSlot {
	if month < time.January || month > time.December {
		panic(fmt.Sprintf("domain: invalid month %d", month))
	}
	if err := hours.Validate(); err != nil {
		panic(fmt.Sprintf("domain: invalid clinic hours: %v", err))
	}

	daySlots := DaySlotTimes(hours)
	days := DaysIn(year, month)

	out := make([]TimeSlot, 0, days*len(daySlots))
	for day := 1; day <= days; day++ {
		date := Date{Year: year, Month: month, Day: day}
		if !hours.WorksOn(date.Weekday()) {
			continue
		}
		for _, t := range daySlots {
			out = append(out, TimeSlot{Date: date, Time: t, Available: true})
		}
	}
	return out
}

// DaySlotTimes lists the slot start times of a single working day. Slots
// that would run past closing time are dropped.
func DaySlotTimes(hours ClinicHours) []TimeOfDay {
	step := TimeOfDay(hours.SlotMinutes)
	out := make([]TimeOfDay, 0, int(hours.Close-hours.Open)/hours.SlotMinutes)
	for t := hours.Open; t < hours.Close && t+step <= hours.Close; t += step {
		if hours.Lunch != nil && hours.Lunch.Contains(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
