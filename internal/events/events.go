// Package events carries appointment changes between server instances so
// each one can drop stale availability.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vetclinic/backend/internal/domain"
)

type Kind string

const (
	KindBooked        Kind = "booked"
	KindStatusChanged Kind = "status_changed"
	KindCancelled     Kind = "cancelled"
	KindDeleted       Kind = "deleted"
	KindHoursChanged  Kind = "hours_changed"
)

const routingKeyPrefix = "appointment."

// AppointmentChanged is published after every committed calendar mutation.
// Date and Time are empty for KindHoursChanged.
type AppointmentChanged struct {
	Kind          Kind      `json:"kind"`
	ClinicID      uuid.UUID `json:"clinicId"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	Date          string    `json:"date,omitempty"`
	Time          string    `json:"time,omitempty"`
	Status        string    `json:"status,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func (e AppointmentChanged) RoutingKey() string {
	return routingKeyPrefix + string(e.Kind)
}

// Month returns the calendar month the change touched.
func (e AppointmentChanged) Month() (int, time.Month, bool) {
	d, err := domain.ParseDate(e.Date)
	if err != nil {
		return 0, 0, false
	}
	return d.Year, d.Month, true
}

func Encode(e AppointmentChanged) ([]byte, error) {
	return json.Marshal(e)
}

func Decode(body []byte) (AppointmentChanged, error) {
	var e AppointmentChanged
	if err := json.Unmarshal(body, &e); err != nil {
		return AppointmentChanged{}, fmt.Errorf("decode appointment event: %w", err)
	}
	if e.Kind == "" {
		return AppointmentChanged{}, fmt.Errorf("decode appointment event: missing kind")
	}
	return e, nil
}

type Publisher interface {
	Publish(ctx context.Context, e AppointmentChanged) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AppointmentChanged) error { return nil }

// Invalidator drops derived availability state.
type Invalidator interface {
	Invalidate(ctx context.Context, clinicID uuid.UUID, year int, month time.Month)
	Forget(clinicID uuid.UUID)
	// InvalidateAll is called when events may have been missed.
	InvalidateAll(ctx context.Context)
}
