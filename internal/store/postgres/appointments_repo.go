package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"vetclinic/backend/internal/domain"
	"vetclinic/backend/internal/store"
)

const (
	pgUniqueViolation     = "23505"
	activeSlotUniqueIndex = "appointments_active_slot_uniq"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Get(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, clinicID, appointmentID)
}

func (r *AppointmentRepo) ListMonth(ctx context.Context, clinicID uuid.UUID, year int, month time.Month) ([]domain.Appointment, error) {
	return listMonth(ctx, r.db, clinicID, year, month)
}

// ListMonthBookings is the booking lookup the availability resolver reads.
// It returns every appointment of the month, cancelled ones included.
func (r *AppointmentRepo) ListMonthBookings(ctx context.Context, clinicID uuid.UUID, year int, month time.Month) ([]domain.BookedAppointment, error) {
	appts, err := listMonth(ctx, r.db, clinicID, year, month)
	if err != nil {
		return nil, err
	}
	return store.Booked(appts), nil
}

// UpdateStatus takes the clinic lock so a reactivated appointment cannot
// race a booking for the same slot.
func (r *AppointmentRepo) UpdateStatus(ctx context.Context, clinicID, appointmentID uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error) {
	m := domain.Appointment{ID: appointmentID, ClinicID: clinicID, Status: status}
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockClinicCalendar(ctx, tx, clinicID); err != nil {
			return err
		}
		return tx.NewUpdate().
			Model(&m).
			Column("status", "updated_at").
			Where("clinic_id = ?", clinicID).
			Where("id = ?", appointmentID).
			Returning("*").
			Scan(ctx)
	})
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error) {
	var m domain.Appointment
	err := r.db.NewDelete().
		Model(&m).
		Where("clinic_id = ?", clinicID).
		Where("id = ?", appointmentID).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func (r *AppointmentRepo) InClinicTransaction(ctx context.Context, clinicID uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockClinicCalendar(ctx, tx, clinicID); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

func lockClinicCalendar(ctx context.Context, tx bun.Tx, clinicID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", clinicID.String()).Exec(ctx)
	return err
}

func (t bookingTx) GetAppointment(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx, clinicID, appointmentID)
}

func (t bookingTx) ListMonthAppointments(ctx context.Context, clinicID uuid.UUID, year int, month time.Month) ([]domain.Appointment, error) {
	return listMonth(ctx, t.tx, clinicID, year, month)
}

func (t bookingTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func getAppointment(ctx context.Context, db bun.IDB, clinicID, appointmentID uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := db.NewSelect().
		Model(&a).
		Where("clinic_id = ?", clinicID).
		Where("id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func listMonth(ctx context.Context, db bun.IDB, clinicID uuid.UUID, year int, month time.Month) ([]domain.Appointment, error) {
	start, end := store.MonthRange(year, month)
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("clinic_id = ?", clinicID).
		Where("slot_date >= ?", start).
		Where("slot_date < ?", end).
		OrderExpr("slot_date ASC, slot_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func mapWriteError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == activeSlotUniqueIndex {
			return store.ErrConflict
		}
		return store.ErrIdempotencyConflict
	}
	return err
}
