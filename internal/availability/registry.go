package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vetclinic/backend/internal/domain"
)

type ClinicStore interface {
	GetClinic(ctx context.Context, id uuid.UUID) (domain.Clinic, error)
}

// LookupFactory returns the booking lookup scoped to one clinic.
type LookupFactory func(clinicID uuid.UUID) BookingLookup

// Registry hands out one resolver per clinic. uuid.Nil selects the
// configured default hours; other clinics load their hours from the store.
type Registry struct {
	clinics ClinicStore
	lookups LookupFactory
	cache   Cache
	log     *slog.Logger

	defaultResolver *Resolver

	mu        sync.RWMutex
	resolvers map[uuid.UUID]*Resolver
	// epoch advances on every Forget so a load that raced one is served
	// but not memoized.
	epoch uint64
}

func NewRegistry(defaultHours domain.ClinicHours, clinics ClinicStore, lookups LookupFactory, cache Cache, log *slog.Logger) (*Registry, error) {
	if lookups == nil {
		return nil, fmt.Errorf("lookup factory is required")
	}
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = slog.Default()
	}

	def, err := NewResolver(defaultHours, lookups(uuid.Nil), WithCache(cache), WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("default clinic: %w", err)
	}

	return &Registry{
		clinics:         clinics,
		lookups:         lookups,
		cache:           cache,
		log:             log,
		defaultResolver: def,
		resolvers:       make(map[uuid.UUID]*Resolver),
	}, nil
}

func (r *Registry) Resolver(ctx context.Context, clinicID uuid.UUID) (*Resolver, error) {
	if clinicID == uuid.Nil {
		return r.defaultResolver, nil
	}

	r.mu.RLock()
	res, ok := r.resolvers[clinicID]
	epoch := r.epoch
	r.mu.RUnlock()
	if ok {
		return res, nil
	}

	if r.clinics == nil {
		return nil, fmt.Errorf("clinic %s: no clinic store configured", clinicID)
	}
	clinic, err := r.clinics.GetClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	hours, err := clinic.Hours()
	if err != nil {
		return nil, fmt.Errorf("clinic %s hours: %w", clinicID, err)
	}
	res, err = NewResolver(hours, r.lookups(clinicID), WithClinicID(clinicID), WithCache(r.cache), WithLogger(r.log))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.resolvers[clinicID]; ok {
		return existing, nil
	}
	if r.epoch != epoch {
		r.log.Debug("clinic hours changed during load; not memoizing", slog.String("clinic_id", clinicID.String()))
		return res, nil
	}
	r.resolvers[clinicID] = res
	return res, nil
}

// Forget drops the memoized resolver so the next request reloads the hours.
func (r *Registry) Forget(clinicID uuid.UUID) {
	r.mu.Lock()
	delete(r.resolvers, clinicID)
	r.epoch++
	r.mu.Unlock()
}

// InvalidateAll drops every memoized resolver and, for a process-local
// cache, every cached month. It is used after change events may have
// been missed.
func (r *Registry) InvalidateAll(ctx context.Context) {
	r.mu.Lock()
	clear(r.resolvers)
	r.epoch++
	r.mu.Unlock()

	if p, ok := r.cache.(Purger); ok {
		p.Purge()
	}
	r.log.InfoContext(ctx, "availability state dropped")
}

// Invalidate evicts a cached month after a booking change.
func (r *Registry) Invalidate(ctx context.Context, clinicID uuid.UUID, year int, month time.Month) {
	r.cache.Invalidate(ctx, KeyFor(clinicID, year, month))
}

// DefaultHours returns the hours served for uuid.Nil.
func (r *Registry) DefaultHours() domain.ClinicHours {
	return r.defaultResolver.Hours()
}
