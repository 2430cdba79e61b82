package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// ParseAppointmentStatus normalizes case and the "canceled" spelling.
func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scheduled":
		return AppointmentStatusScheduled, true
	case "confirmed":
		return AppointmentStatusConfirmed, true
	case "completed":
		return AppointmentStatusCompleted, true
	case "cancelled", "canceled":
		return AppointmentStatusCancelled, true
	}
	return "", false
}

func (s AppointmentStatus) IsCancelled() bool {
	st, ok := ParseAppointmentStatus(string(s))
	return ok && st == AppointmentStatusCancelled
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID          uuid.UUID         `bun:"id,pk,type:uuid"`
	ClinicID    uuid.UUID         `bun:"clinic_id,notnull,type:uuid"`
	PetID       string            `bun:"pet_id,notnull"`
	TutorID     string            `bun:"tutor_id,notnull"`
	ServiceType string            `bun:"service_type"`
	Notes       string            `bun:"notes"`
	SlotDate    time.Time         `bun:"slot_date,notnull,type:date"`
	SlotTime    TimeOfDay         `bun:"slot_minute,notnull"`
	Status      AppointmentStatus `bun:"status,notnull"`
	CreatedAt   time.Time         `bun:"created_at,notnull"`
	UpdatedAt   time.Time         `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.Status == "" {
			a.Status = AppointmentStatusScheduled
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a Appointment) Date() Date {
	return DateOf(a.SlotDate)
}

// Booked returns the read-only view the availability resolver consumes.
func (a Appointment) Booked() BookedAppointment {
	return BookedAppointment{
		Date:   a.Date().String(),
		Time:   a.SlotTime.String(),
		Status: string(a.Status),
	}
}

// BookedAppointment is an appointment as reported by a booking store.
type BookedAppointment struct {
	Date   string
	Time   string
	Status string
}

// OccupiesSlot reports whether the appointment blocks its slot. Cancelled
// appointments free it.
func (b BookedAppointment) OccupiesSlot() bool {
	return !AppointmentStatus(b.Status).IsCancelled()
}

// Key normalizes the booking's date and time. ok is false when either is
// malformed, in which case the booking cannot match any slot.
func (b BookedAppointment) Key() (SlotKey, bool) {
	d, err := ParseDate(strings.TrimSpace(b.Date))
	if err != nil {
		return SlotKey{}, false
	}
	t, err := ParseTimeOfDay(b.Time)
	if err != nil {
		return SlotKey{}, false
	}
	return SlotKey{Date: d, Time: t}, true
}
