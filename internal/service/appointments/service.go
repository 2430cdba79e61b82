package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vetclinic/backend/internal/availability"
	"vetclinic/backend/internal/domain"
	"vetclinic/backend/internal/events"
	"vetclinic/backend/internal/store"
)

// ErrSlotUnavailable means the requested slot is booked or not on the grid.
var ErrSlotUnavailable = errors.New("slot unavailable")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Resolvers is the slice of availability.Registry the service needs.
type Resolvers interface {
	Invalidate(ctx context.Context, clinicID uuid.UUID, year int, month time.Month)
	Forget(clinicID uuid.UUID)
	DefaultHours() domain.ClinicHours
}

type Service struct {
	repo      store.AppointmentRepository
	clinics   store.ClinicRepository
	resolvers Resolvers
	publisher events.Publisher
	now       func() time.Time
	log       *slog.Logger
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides the clock used to reject past dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(repo store.AppointmentRepository, clinics store.ClinicRepository, resolvers Resolvers, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		clinics:   clinics,
		resolvers: resolvers,
		publisher: events.NopPublisher{},
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "appointments"))
	return s
}

type BookInput struct {
	ClinicID       uuid.UUID
	PetID          string
	TutorID        string
	ServiceType    string
	Notes          string
	Date           string
	Time           string
	IdempotencyKey string
}

// Book reserves a free grid slot. The hours, the availability check and the
// insert are all read under the clinic's booking lock, so two callers cannot
// both see the slot free and an hours change cannot slip in between.
func (s *Service) Book(ctx context.Context, in BookInput) (domain.Appointment, error) {
	petID := strings.TrimSpace(in.PetID)
	if petID == "" {
		return domain.Appointment{}, validationError("petId is required")
	}
	tutorID := strings.TrimSpace(in.TutorID)
	if tutorID == "" {
		return domain.Appointment{}, validationError("tutorId is required")
	}
	date, err := domain.ParseDate(strings.TrimSpace(in.Date))
	if err != nil {
		return domain.Appointment{}, validationError("date must be YYYY-MM-DD")
	}
	tod, err := domain.ParseTimeOfDay(in.Time)
	if err != nil {
		return domain.Appointment{}, validationError("time must be HH:mm")
	}
	if date.Before(domain.DateOf(s.now())) {
		return domain.Appointment{}, validationError("date is in the past")
	}

	appt := domain.Appointment{
		ClinicID:    in.ClinicID,
		PetID:       petID,
		TutorID:     tutorID,
		ServiceType: strings.TrimSpace(in.ServiceType),
		Notes:       in.Notes,
		SlotDate:    date.Time(),
		SlotTime:    tod,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Appointment{}, validationError("idempotency key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("vetclinic:book_appointment:"+in.ClinicID.String()+":"+key))
	}

	var (
		out    domain.Appointment
		replay bool
	)
	err = s.repo.InClinicTransaction(ctx, in.ClinicID, func(ctx context.Context, tx store.BookingTx) error {
		if appt.ID != uuid.Nil {
			existing, err := tx.GetAppointment(ctx, in.ClinicID, appt.ID)
			switch {
			case err == nil:
				if !sameBooking(existing, appt) {
					return store.ErrIdempotencyConflict
				}
				out, replay = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		hours, err := s.hoursIn(ctx, tx, in.ClinicID)
		if err != nil {
			return err
		}
		lookup := availability.BookingLookupFunc(func(ctx context.Context, year int, month time.Month) ([]domain.BookedAppointment, error) {
			appts, err := tx.ListMonthAppointments(ctx, in.ClinicID, year, month)
			if err != nil {
				return nil, err
			}
			return store.Booked(appts), nil
		})
		resp, err := availability.ComputeAvailability(ctx, availability.Request{
			ClinicID:    in.ClinicID,
			Year:        date.Year,
			Month:       date.Month,
			ServiceType: appt.ServiceType,
		}, hours, lookup)
		if err != nil {
			return err
		}
		slot, ok := resp.Slot(domain.SlotKey{Date: date, Time: tod})
		if !ok || !slot.Available {
			return ErrSlotUnavailable
		}

		created, err := tx.CreateAppointment(ctx, appt)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrSlotUnavailable
			}
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	if !replay {
		s.changed(ctx, events.KindBooked, out)
	}
	return out, nil
}

// hoursIn reads a clinic's hours inside tx. uuid.Nil is the configured
// default clinic.
func (s *Service) hoursIn(ctx context.Context, tx store.BookingTx, clinicID uuid.UUID) (domain.ClinicHours, error) {
	if clinicID == uuid.Nil {
		return s.resolvers.DefaultHours(), nil
	}
	c, err := tx.GetClinic(ctx, clinicID)
	if err != nil {
		return domain.ClinicHours{}, err
	}
	hours, err := c.Hours()
	if err != nil {
		return domain.ClinicHours{}, fmt.Errorf("clinic %s hours: %w", clinicID, err)
	}
	return hours, nil
}

func sameBooking(a, b domain.Appointment) bool {
	return a.ClinicID == b.ClinicID &&
		a.PetID == b.PetID &&
		a.TutorID == b.TutorID &&
		a.ServiceType == b.ServiceType &&
		a.Notes == b.Notes &&
		a.Date() == b.Date() &&
		a.SlotTime == b.SlotTime
}

func (s *Service) Get(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment id is required")
	}
	return s.repo.Get(ctx, clinicID, appointmentID)
}

func (s *Service) ListMonth(ctx context.Context, clinicID uuid.UUID, year int, month time.Month) ([]domain.Appointment, error) {
	if year < 1 {
		return nil, validationError("year must be positive")
	}
	if month < time.January || month > time.December {
		return nil, validationError("month must be between 1 and 12")
	}
	return s.repo.ListMonth(ctx, clinicID, year, month)
}

// UpdateStatus moves an appointment to status. Reactivating a cancelled
// appointment whose slot has been rebooked fails with ErrSlotUnavailable.
func (s *Service) UpdateStatus(ctx context.Context, clinicID, appointmentID uuid.UUID, status string) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment id is required")
	}
	st, ok := domain.ParseAppointmentStatus(status)
	if !ok {
		return domain.Appointment{}, validationError("invalid status")
	}

	updated, err := s.repo.UpdateStatus(ctx, clinicID, appointmentID, st)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Appointment{}, ErrSlotUnavailable
		}
		return domain.Appointment{}, err
	}

	kind := events.KindStatusChanged
	if st.IsCancelled() {
		kind = events.KindCancelled
	}
	s.changed(ctx, kind, updated)
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error) {
	return s.UpdateStatus(ctx, clinicID, appointmentID, string(domain.AppointmentStatusCancelled))
}

func (s *Service) Delete(ctx context.Context, clinicID, appointmentID uuid.UUID) error {
	if appointmentID == uuid.Nil {
		return validationError("appointment id is required")
	}
	deleted, err := s.repo.Delete(ctx, clinicID, appointmentID)
	if err != nil {
		return err
	}
	s.changed(ctx, events.KindDeleted, deleted)
	return nil
}

// ClinicHours returns the hours a clinic's grid is generated from. uuid.Nil
// is the configured default clinic.
func (s *Service) ClinicHours(ctx context.Context, clinicID uuid.UUID) (domain.ClinicHours, error) {
	if clinicID == uuid.Nil {
		return s.resolvers.DefaultHours(), nil
	}
	c, err := s.clinics.GetClinic(ctx, clinicID)
	if err != nil {
		return domain.ClinicHours{}, err
	}
	return c.Hours()
}

// SetClinicHours stores new hours for a clinic, creating it if needed.
// Existing appointments are kept even when they fall off the new grid.
func (s *Service) SetClinicHours(ctx context.Context, clinicID uuid.UUID, name string, hours domain.ClinicHours) (domain.ClinicHours, error) {
	if clinicID == uuid.Nil {
		return domain.ClinicHours{}, validationError("clinic id is required")
	}
	if err := hours.Validate(); err != nil {
		return domain.ClinicHours{}, validationError(err.Error())
	}

	// The clinic lock orders this write against in-flight bookings.
	var saved domain.Clinic
	err := s.repo.InClinicTransaction(ctx, clinicID, func(ctx context.Context, tx store.BookingTx) error {
		c, err := tx.GetClinic(ctx, clinicID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c = domain.Clinic{ID: clinicID}
		case err != nil:
			return err
		}
		if n := strings.TrimSpace(name); n != "" {
			c.Name = n
		}
		if c.Name == "" {
			c.Name = clinicID.String()
		}
		c.SetHours(hours)

		saved, err = tx.UpsertClinic(ctx, c)
		return err
	})
	if err != nil {
		return domain.ClinicHours{}, fmt.Errorf("save clinic %s: %w", clinicID, err)
	}

	s.resolvers.Forget(clinicID)
	s.publish(ctx, events.AppointmentChanged{
		Kind:       events.KindHoursChanged,
		ClinicID:   clinicID,
		OccurredAt: s.now().UTC(),
	})
	return saved.Hours()
}

func (s *Service) changed(ctx context.Context, kind events.Kind, appt domain.Appointment) {
	d := appt.Date()
	s.resolvers.Invalidate(ctx, appt.ClinicID, d.Year, d.Month)
	s.publish(ctx, events.AppointmentChanged{
		Kind:          kind,
		ClinicID:      appt.ClinicID,
		AppointmentID: appt.ID,
		Date:          d.String(),
		Time:          appt.SlotTime.String(),
		Status:        string(appt.Status),
		OccurredAt:    s.now().UTC(),
	})
}

// publish failures are logged; the local cache is already invalidated and
// other instances fall back to their cache TTL.
func (s *Service) publish(ctx context.Context, e events.AppointmentChanged) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("publish appointment event failed",
			slog.String("routing_key", e.RoutingKey()),
			slog.String("clinic_id", e.ClinicID.String()),
			slog.Any("err", err),
		)
	}
}
