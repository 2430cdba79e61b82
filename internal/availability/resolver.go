// Package availability merges a clinic's slot grid with its bookings.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vetclinic/backend/internal/domain"
)

// BookingLookup lists every appointment of a month regardless of status.
type BookingLookup interface {
	ListMonthAppointments(ctx context.Context, year int, month time.Month) ([]domain.BookedAppointment, error)
}

type BookingLookupFunc func(ctx context.Context, year int, month time.Month) ([]domain.BookedAppointment, error)

func (f BookingLookupFunc) ListMonthAppointments(ctx context.Context, year int, month time.Month) ([]domain.BookedAppointment, error) {
	return f(ctx, year, month)
}

type Request struct {
	ClinicID    uuid.UUID
	Year        int
	Month       time.Month
	ServiceType string
}

type Response struct {
	ClinicID    uuid.UUID
	Year        int
	Month       time.Month
	ServiceType string
	Slots       []domain.TimeSlot
	Hours       domain.ClinicHours
}

// Slot returns the slot at key, if the grid has one.
func (r Response) Slot(key domain.SlotKey) (domain.TimeSlot, bool) {
	for _, s := range r.Slots {
		if s.Key() == key {
			return s, true
		}
	}
	return domain.TimeSlot{}, false
}

func (r Response) clone() Response {
	out := r
	out.Slots = append([]domain.TimeSlot(nil), r.Slots...)
	out.Hours.WorkingDays = append([]time.Weekday(nil), r.Hours.WorkingDays...)
	if r.Hours.Lunch != nil {
		l := *r.Hours.Lunch
		out.Hours.Lunch = &l
	}
	return out
}

// ComputeAvailability generates the month grid and marks every slot an
// active booking sits on exactly. Lookup failures are returned, never
// treated as an empty calendar.
func ComputeAvailability(ctx context.Context, req Request, hours domain.ClinicHours, lookup BookingLookup) (Response, error) {
	grid := domain.GenerateMonthGrid(req.Year, req.Month, hours)

	booked, err := lookup.ListMonthAppointments(ctx, req.Year, req.Month)
	if err != nil {
		return Response{}, fmt.Errorf("list appointments for %04d-%02d: %w", req.Year, int(req.Month), err)
	}
	MarkBooked(grid, booked)

	return Response{
		ClinicID:    req.ClinicID,
		Year:        req.Year,
		Month:       req.Month,
		ServiceType: req.ServiceType,
		Slots:       grid,
		Hours:       hours,
	}, nil
}

// MarkBooked sets Available on each slot. Matching is exact on normalized
// date and start time; a booking never blocks neighbouring slots.
func MarkBooked(slots []domain.TimeSlot, booked []domain.BookedAppointment) {
	occupied := make(map[domain.SlotKey]struct{}, len(booked))
	for _, b := range booked {
		if !b.OccupiesSlot() {
			continue
		}
		key, ok := b.Key()
		if !ok {
			continue
		}
		occupied[key] = struct{}{}
	}
	for i := range slots {
		_, taken := occupied[slots[i].Key()]
		slots[i].Available = !taken
	}
}

// Resolver answers availability queries for one clinic.
type Resolver struct {
	clinicID uuid.UUID
	hours    domain.ClinicHours
	lookup   BookingLookup
	cache    Cache
	log      *slog.Logger
}

type Option func(*Resolver)

func WithCache(c Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

func WithClinicID(id uuid.UUID) Option {
	return func(r *Resolver) { r.clinicID = id }
}

// NewResolver validates hours up front so misconfiguration fails before any
// request is served.
func NewResolver(hours domain.ClinicHours, lookup BookingLookup, opts ...Option) (*Resolver, error) {
	if err := hours.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clinic hours: %w", err)
	}
	if lookup == nil {
		return nil, fmt.Errorf("booking lookup is required")
	}

	hours.WorkingDays = append([]time.Weekday(nil), hours.WorkingDays...)
	if hours.Lunch != nil {
		l := *hours.Lunch
		hours.Lunch = &l
	}

	r := &Resolver{
		hours:  hours,
		lookup: lookup,
		cache:  NopCache{},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(slog.String("component", "availability"), slog.String("clinic_id", r.clinicID.String()))
	return r, nil
}

func (r *Resolver) ClinicID() uuid.UUID { return r.clinicID }

func (r *Resolver) Hours() domain.ClinicHours {
	return Response{Hours: r.hours}.clone().Hours
}

// Availability lists every slot of the month with its availability.
func (r *Resolver) Availability(ctx context.Context, year int, month time.Month, serviceType string) (Response, error) {
	key := Key{ClinicID: r.clinicID, Year: year, Month: month}
	fingerprint := r.hours.Fingerprint()

	if cached, ok := r.cache.Get(ctx, key, fingerprint); ok {
		r.log.Debug("availability cache hit", slog.String("month", key.MonthString()))
		cached.ServiceType = serviceType
		return cached, nil
	}

	// Read before the lookup so an invalidation racing it refuses the Set.
	gen, cacheable := r.cache.Generation(ctx, key)
	resp, err := ComputeAvailability(ctx, Request{
		ClinicID:    r.clinicID,
		Year:        year,
		Month:       month,
		ServiceType: serviceType,
	}, r.hours, r.lookup)
	if err != nil {
		return Response{}, err
	}

	if cacheable {
		r.cache.Set(ctx, key, fingerprint, gen, resp)
	}
	return resp, nil
}

// IsSlotAvailable reports whether date ("YYYY-MM-DD") and time ("HH:mm") name
// a free grid slot. Booked slots and times outside the grid both report false.
func (r *Resolver) IsSlotAvailable(ctx context.Context, date, timeOfDay string) (bool, error) {
	d, err := domain.ParseDate(date)
	if err != nil {
		return false, nil
	}
	t, err := domain.ParseTimeOfDay(timeOfDay)
	if err != nil {
		return false, nil
	}

	resp, err := r.Availability(ctx, d.Year, d.Month, "")
	if err != nil {
		return false, err
	}
	slot, ok := resp.Slot(domain.SlotKey{Date: d, Time: t})
	if !ok {
		return false, nil
	}
	return slot.Available, nil
}
