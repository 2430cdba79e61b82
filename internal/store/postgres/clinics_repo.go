package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"vetclinic/backend/internal/domain"
	"vetclinic/backend/internal/store"
)

// ClinicRepo reads clinics outside any booking. Writes go through
// AppointmentRepo.InClinicTransaction so they serialize with bookings.
type ClinicRepo struct {
	db *bun.DB
}

func NewClinicRepo(db *bun.DB) *ClinicRepo {
	return &ClinicRepo{db: db}
}

func (r *ClinicRepo) GetClinic(ctx context.Context, id uuid.UUID) (domain.Clinic, error) {
	return getClinic(ctx, r.db, id)
}

func (t bookingTx) GetClinic(ctx context.Context, id uuid.UUID) (domain.Clinic, error) {
	return getClinic(ctx, t.tx, id)
}

// UpsertClinic inserts the clinic or replaces its name and calendar.
func (t bookingTx) UpsertClinic(ctx context.Context, clinic domain.Clinic) (domain.Clinic, error) {
	m := clinic
	err := t.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("working_days = EXCLUDED.working_days").
		Set("open_time = EXCLUDED.open_time").
		Set("close_time = EXCLUDED.close_time").
		Set("slot_minutes = EXCLUDED.slot_minutes").
		Set("lunch_start = EXCLUDED.lunch_start").
		Set("lunch_end = EXCLUDED.lunch_end").
		Set("updated_at = now()").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Clinic{}, err
	}
	return m, nil
}

func getClinic(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Clinic, error) {
	var c domain.Clinic
	err := db.NewSelect().Model(&c).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Clinic{}, store.ErrNotFound
		}
		return domain.Clinic{}, err
	}
	return c, nil
}
