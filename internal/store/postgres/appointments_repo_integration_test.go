package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"vetclinic/backend/internal/domain"
	"vetclinic/backend/internal/store"
	"vetclinic/backend/migrations"
)

// openTestDB opens a single-connection pool pinned to a throwaway schema
// with migrations applied.
func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	databaseURL := strings.TrimSpace(os.Getenv("VETCLINIC_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("VETCLINIC_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, Options{MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "vetclinic_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})
	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + schema).Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}

	applied, err := Migrate(ctx, db, migrations.FS, nil)
	if err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if len(applied) == 0 {
		t.Fatalf("no migrations applied")
	}
	again, err := Migrate(ctx, db, migrations.FS, nil)
	if err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second Migrate applied %v, want none", again)
	}
	return db
}

func TestPostgresIntegration_BookCancelRebook(t *testing.T) {
	db := openTestDB(t)
	repo := NewAppointmentRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clinicID := uuid.MustParse("00000000-0000-0000-0000-000000000a01")
	slotDate := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	slotTime := domain.NewTimeOfDay(9, 30)

	book := func(id uuid.UUID) (domain.Appointment, error) {
		var out domain.Appointment
		err := repo.InClinicTransaction(ctx, clinicID, func(ctx context.Context, tx store.BookingTx) error {
			a, err := tx.CreateAppointment(ctx, domain.Appointment{
				ID:       id,
				ClinicID: clinicID,
				PetID:    "pet-1",
				TutorID:  "tutor-1",
				SlotDate: slotDate,
				SlotTime: slotTime,
			})
			out = a
			return err
		})
		return out, err
	}

	first, err := book(uuid.MustParse("00000000-0000-0000-0000-000000000901"))
	if err != nil {
		t.Fatalf("book error: %v", err)
	}
	if first.Status != domain.AppointmentStatusScheduled {
		t.Fatalf("status = %q, want scheduled", first.Status)
	}

	if _, err := book(uuid.MustParse("00000000-0000-0000-0000-000000000902")); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("double booking err = %v, want %v", err, store.ErrConflict)
	}
	if _, err := book(first.ID); !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("reused id err = %v", err)
	}

	err = repo.InClinicTransaction(ctx, clinicID, func(ctx context.Context, tx store.BookingTx) error {
		got, err := tx.GetAppointment(ctx, clinicID, first.ID)
		if err != nil {
			return err
		}
		if got.Date() != domain.DateOf(slotDate) || got.SlotTime != slotTime {
			t.Errorf("stored slot = %s %s", got.Date(), got.SlotTime)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("GetAppointment error: %v", err)
	}

	cancelled, err := repo.UpdateStatus(ctx, clinicID, first.ID, domain.AppointmentStatusCancelled)
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if !cancelled.Status.IsCancelled() || !cancelled.UpdatedAt.After(first.UpdatedAt.Add(-time.Second)) {
		t.Fatalf("unexpected cancelled row: %+v", cancelled)
	}

	second, err := book(uuid.MustParse("00000000-0000-0000-0000-000000000903"))
	if err != nil {
		t.Fatalf("rebook after cancel error: %v", err)
	}

	bookings, err := repo.ListMonthBookings(ctx, clinicID, 2026, time.March)
	if err != nil {
		t.Fatalf("ListMonthBookings error: %v", err)
	}
	if len(bookings) != 2 {
		t.Fatalf("len(bookings) = %d, want 2", len(bookings))
	}
	active := 0
	for _, b := range bookings {
		if b.Date != "2026-03-10" || b.Time != "09:30" {
			t.Fatalf("booking = %+v", b)
		}
		if b.OccupiesSlot() {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("active bookings = %d, want 1", active)
	}

	if other, err := repo.ListMonth(ctx, clinicID, 2026, time.April); err != nil || len(other) != 0 {
		t.Fatalf("April = %v, %v; want empty", other, err)
	}
	if other, err := repo.ListMonth(ctx, uuid.New(), 2026, time.March); err != nil || len(other) != 0 {
		t.Fatalf("other clinic = %v, %v; want empty", other, err)
	}

	if _, err := repo.UpdateStatus(ctx, clinicID, first.ID, domain.AppointmentStatusScheduled); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("reactivating over a live booking err = %v, want %v", err, store.ErrConflict)
	}

	deleted, err := repo.Delete(ctx, clinicID, second.ID)
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if deleted.ID != second.ID {
		t.Fatalf("deleted id = %s, want %s", deleted.ID, second.ID)
	}
	if _, err := repo.Get(ctx, clinicID, second.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after delete err = %v, want %v", err, store.ErrNotFound)
	}
	if _, err := repo.Delete(ctx, clinicID, second.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Delete err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestPostgresIntegration_ClinicUpsert(t *testing.T) {
	db := openTestDB(t)
	repo := NewClinicRepo(db)
	appts := NewAppointmentRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	upsert := func(c domain.Clinic) error {
		return appts.InClinicTransaction(ctx, c.ID, func(ctx context.Context, tx store.BookingTx) error {
			_, err := tx.UpsertClinic(ctx, c)
			return err
		})
	}

	id := uuid.MustParse("00000000-0000-0000-0000-000000000b01")
	if _, err := repo.GetClinic(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetClinic err = %v, want %v", err, store.ErrNotFound)
	}

	c := domain.Clinic{ID: id, Name: "north"}
	c.SetHours(domain.DefaultClinicHours())
	if err := upsert(c); err != nil {
		t.Fatalf("UpsertClinic error: %v", err)
	}

	c.SetHours(domain.ClinicHours{
		WorkingDays: []time.Weekday{time.Saturday},
		Open:        domain.NewTimeOfDay(10, 0),
		Close:       domain.NewTimeOfDay(14, 0),
		SlotMinutes: 20,
	})
	if err := upsert(c); err != nil {
		t.Fatalf("second UpsertClinic error: %v", err)
	}

	got, err := repo.GetClinic(ctx, id)
	if err != nil {
		t.Fatalf("GetClinic error: %v", err)
	}
	hours, err := got.Hours()
	if err != nil {
		t.Fatalf("Hours error: %v", err)
	}
	if hours.Fingerprint() != "6|10:00-14:00|20" {
		t.Fatalf("fingerprint = %q", hours.Fingerprint())
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}
