package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vetclinic/backend/internal/domain"
)

// BookingTx is the view of a clinic calendar inside a booking transaction.
// Clinic hours read or written through it are consistent with the
// appointments it sees.
type BookingTx interface {
	GetClinic(ctx context.Context, id uuid.UUID) (domain.Clinic, error)
	UpsertClinic(ctx context.Context, clinic domain.Clinic) (domain.Clinic, error)

	GetAppointment(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	ListMonthAppointments(ctx context.Context, clinicID uuid.UUID, year int, month time.Month) ([]domain.Appointment, error)
}

// MonthRange returns [first day, first day of next month) for year/month.
func MonthRange(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Booked converts stored appointments into the resolver's booking view.
func Booked(appts []domain.Appointment) []domain.BookedAppointment {
	out := make([]domain.BookedAppointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.Booked())
	}
	return out
}
