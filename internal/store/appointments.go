package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vetclinic/backend/internal/domain"
)

type AppointmentRepository interface {
	Get(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error)
	ListMonth(ctx context.Context, clinicID uuid.UUID, year int, month time.Month) ([]domain.Appointment, error)
	UpdateStatus(ctx context.Context, clinicID, appointmentID uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error)
	Delete(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error)

	// InClinicTransaction runs fn while holding the clinic's booking lock.
	InClinicTransaction(ctx context.Context, clinicID uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error
}

type ClinicRepository interface {
	GetClinic(ctx context.Context, id uuid.UUID) (domain.Clinic, error)
}
