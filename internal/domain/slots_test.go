package domain

import (
	"reflect"
	"testing"
	"time"
)

func weekdaysOnly() ClinicHours {
	return ClinicHours{
		WorkingDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Open:        NewTimeOfDay(9, 0),
		Close:       NewTimeOfDay(12, 0),
		SlotMinutes: 60,
	}
}

func TestGenerateMonthGrid_HourlyWeekdaysWithoutLunch(t *testing.T) {
	// February 2026 starts on a Sunday: exactly 20 weekdays.
	grid := GenerateMonthGrid(2026, time.February, weekdaysOnly())
	if len(grid) != 20*3 {
		t.Fatalf("len(grid) = %d, want %d", len(grid), 20*3)
	}

	perDay := map[Date][]string{}
	for _, s := range grid {
		perDay[s.Date] = append(perDay[s.Date], s.Time.String())
	}
	want := []string{"09:00", "10:00", "11:00"}
	for d, times := range perDay {
		if !reflect.DeepEqual(times, want) {
			t.Fatalf("%s times = %v, want %v", d, times, want)
		}
	}
}

func TestGenerateMonthGrid_DefaultHoursJanuary2025(t *testing.T) {
	grid := GenerateMonthGrid(2025, time.January, DefaultClinicHours())

	perDay := map[Date]int{}
	for _, s := range grid {
		perDay[s.Date]++
	}
	// 31 days minus four Sundays.
	if len(perDay) != 27 {
		t.Fatalf("working days = %d, want 27", len(perDay))
	}
	for d, n := range perDay {
		if n != 18 {
			t.Fatalf("%s slots = %d, want 18", d, n)
		}
	}
	if len(grid) != 27*18 {
		t.Fatalf("len(grid) = %d, want %d", len(grid), 27*18)
	}
}

func TestGenerateMonthGrid_Properties(t *testing.T) {
	hours := DefaultClinicHours()
	grid := GenerateMonthGrid(2025, time.March, hours)
	if len(grid) == 0 {
		t.Fatalf("expected slots")
	}

	seen := map[SlotKey]struct{}{}
	for i, s := range grid {
		if !hours.WorksOn(s.Date.Weekday()) {
			t.Fatalf("slot on non-working day %s (%s)", s.Date, s.Date.Weekday())
		}
		if s.Time < hours.Open || s.Time >= hours.Close {
			t.Fatalf("slot %s outside working hours", s.Time)
		}
		if hours.Lunch.Contains(s.Time) {
			t.Fatalf("slot %s inside lunch break", s.Time)
		}
		if int(s.Time-hours.Open)%hours.SlotMinutes != 0 {
			t.Fatalf("slot %s not aligned to %d minute grid", s.Time, hours.SlotMinutes)
		}
		if !s.Available {
			t.Fatalf("slot %s %s not available", s.Date, s.Time)
		}
		if _, dup := seen[s.Key()]; dup {
			t.Fatalf("duplicate slot %s %s", s.Date, s.Time)
		}
		seen[s.Key()] = struct{}{}

		if i > 0 {
			prev := grid[i-1]
			if s.Date.Before(prev.Date) || (s.Date == prev.Date && s.Time <= prev.Time) {
				t.Fatalf("grid not sorted at %d: %s %s after %s %s", i, s.Date, s.Time, prev.Date, prev.Time)
			}
		}
	}
}

func TestGenerateMonthGrid_Deterministic(t *testing.T) {
	a := GenerateMonthGrid(2025, time.June, DefaultClinicHours())
	b := GenerateMonthGrid(2025, time.June, DefaultClinicHours())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("grids differ between identical calls")
	}
}

func TestGenerateMonthGrid_LunchBoundaries(t *testing.T) {
	times := DaySlotTimes(DefaultClinicHours())
	has := map[string]bool{}
	for _, tm := range times {
		has[tm.String()] = true
	}

	tests := []struct {
		time string
		want bool
	}{
		{"08:00", true},
		{"11:30", true},
		{"12:00", false},
		{"12:30", false},
		{"13:00", true},
		{"17:30", true},
		{"18:00", false},
	}
	for _, tt := range tests {
		if has[tt.time] != tt.want {
			t.Errorf("slot %s present = %v, want %v", tt.time, has[tt.time], tt.want)
		}
	}
}

func TestDaySlotTimes_DropsPartialTrailingSlot(t *testing.T) {
	hours := ClinicHours{
		WorkingDays: []time.Weekday{time.Monday},
		Open:        NewTimeOfDay(9, 0),
		Close:       NewTimeOfDay(10, 45),
		SlotMinutes: 30,
	}
	got := DaySlotTimes(hours)
	want := []TimeOfDay{NewTimeOfDay(9, 0), NewTimeOfDay(9, 30), NewTimeOfDay(10, 0)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
}

func TestGenerateMonthGrid_LeapYear(t *testing.T) {
	hours := ClinicHours{
		WorkingDays: []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
		Open:        NewTimeOfDay(9, 0),
		Close:       NewTimeOfDay(10, 0),
		SlotMinutes: 60,
	}

	tests := []struct {
		year int
		want int
	}{
		{2024, 29},
		{2025, 28},
		{2000, 29},
		{1900, 28},
	}
	for _, tt := range tests {
		if got := len(GenerateMonthGrid(tt.year, time.February, hours)); got != tt.want {
			t.Errorf("February %d slots = %d, want %d", tt.year, got, tt.want)
		}
	}
}

func TestGenerateMonthGrid_PanicsOnInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		month time.Month
		hours ClinicHours
	}{
		{"month zero", 0, DefaultClinicHours()},
		{"month thirteen", 13, DefaultClinicHours()},
		{"invalid hours", time.January, ClinicHours{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			GenerateMonthGrid(2025, tt.month, tt.hours)
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-15")
	if err != nil {
		t.Fatalf("ParseDate error: %v", err)
	}
	if d != (Date{Year: 2025, Month: time.January, Day: 15}) {
		t.Fatalf("date = %+v", d)
	}
	if d.String() != "2025-01-15" {
		t.Fatalf("String = %q", d.String())
	}
	if d.Weekday() != time.Wednesday {
		t.Fatalf("weekday = %s, want Wednesday", d.Weekday())
	}

	for _, bad := range []string{"2025-02-30", "2025-1-5", "15/01/2025", ""} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("ParseDate(%q) expected error", bad)
		}
	}
}
