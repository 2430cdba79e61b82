package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Clinic stores the per-clinic operating calendar.
type Clinic struct {
	bun.BaseModel `bun:"table:clinics"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	Name        string    `bun:"name,notnull"`
	WorkingDays []int16   `bun:"working_days,array,notnull"`
	OpenTime    string    `bun:"open_time,notnull"`
	CloseTime   string    `bun:"close_time,notnull"`
	SlotMinutes int       `bun:"slot_minutes,notnull"`
	LunchStart  *string   `bun:"lunch_start"`
	LunchEnd    *string   `bun:"lunch_end"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

func (c *Clinic) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if c.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			c.ID = id
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		c.UpdatedAt = now
	}
	return nil
}

// Hours converts the stored calendar and validates it.
func (c Clinic) Hours() (ClinicHours, error) {
	open, err := ParseTimeOfDay(c.OpenTime)
	if err != nil {
		return ClinicHours{}, err
	}
	closeAt, err := ParseTimeOfDay(c.CloseTime)
	if err != nil {
		return ClinicHours{}, err
	}

	h := ClinicHours{
		WorkingDays: make([]time.Weekday, 0, len(c.WorkingDays)),
		Open:        open,
		Close:       closeAt,
		SlotMinutes: c.SlotMinutes,
	}
	for _, wd := range c.WorkingDays {
		h.WorkingDays = append(h.WorkingDays, time.Weekday(wd))
	}

	if (c.LunchStart == nil) != (c.LunchEnd == nil) {
		return ClinicHours{}, fmt.Errorf("lunch_start and lunch_end must be set together")
	}
	if c.LunchStart != nil {
		ls, err := ParseTimeOfDay(*c.LunchStart)
		if err != nil {
			return ClinicHours{}, err
		}
		le, err := ParseTimeOfDay(*c.LunchEnd)
		if err != nil {
			return ClinicHours{}, err
		}
		h.Lunch = &TimeRange{Start: ls, End: le}
	}

	if err := h.Validate(); err != nil {
		return ClinicHours{}, err
	}
	return h, nil
}

// SetHours copies h into the stored representation.
func (c *Clinic) SetHours(h ClinicHours) {
	c.WorkingDays = make([]int16, 0, len(h.WorkingDays))
	for _, wd := range h.WorkingDays {
		c.WorkingDays = append(c.WorkingDays, int16(wd))
	}
	c.OpenTime = h.Open.String()
	c.CloseTime = h.Close.String()
	c.SlotMinutes = h.SlotMinutes
	c.LunchStart, c.LunchEnd = nil, nil
	if h.Lunch != nil {
		ls, le := h.Lunch.Start.String(), h.Lunch.End.String()
		c.LunchStart, c.LunchEnd = &ls, &le
	}
}
