package grpcapi

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"vetclinic/backend/internal/availability"
	"vetclinic/backend/internal/domain"
	"vetclinic/backend/internal/service/appointments"
	"vetclinic/backend/internal/store"
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

type Resolvers interface {
	Resolver(ctx context.Context, clinicID uuid.UUID) (*availability.Resolver, error)
}

type Booker interface {
	Book(ctx context.Context, in appointments.BookInput) (domain.Appointment, error)
}

type AvailabilityServer struct {
	resolvers Resolvers
	booker    Booker
	now       func() time.Time
	log       *slog.Logger
}

func NewAvailabilityServer(resolvers Resolvers, booker Booker, log *slog.Logger) *AvailabilityServer {
	if log == nil {
		log = slog.Default()
	}
	return &AvailabilityServer{
		resolvers: resolvers,
		booker:    booker,
		now:       time.Now,
		log:       log.With(slog.String("component", "grpc.availability")),
	}
}

func (s *AvailabilityServer) GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	year, hasYear, err := intField(req, "year")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	month, hasMonth, err := intField(req, "month")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !hasYear || !hasMonth {
		log.Warn("invalid request", slog.String("reason", "missing_year_month"))
		return nil, status.Error(codes.InvalidArgument, "year and month are required")
	}
	if year < 1 || month < 1 || month > 12 {
		return nil, status.Error(codes.InvalidArgument, "month must be between 1 and 12 and year positive")
	}
	now := s.now()
	if year < now.Year() || (year == now.Year() && time.Month(month) < now.Month()) {
		return nil, status.Error(codes.InvalidArgument, "availability for past months cannot be queried")
	}
	clinicID, err := clinicField(req)
	if err != nil {
		return nil, err
	}

	res, err := s.resolvers.Resolver(ctx, clinicID)
	if err != nil {
		return nil, s.toStatus(log, err, slog.String("clinic_id", clinicID.String()))
	}
	resp, err := res.Availability(ctx, year, time.Month(month), stringField(req, "serviceType"))
	if err != nil {
		return nil, s.toStatus(log, err, slog.String("clinic_id", clinicID.String()))
	}

	out, err := structpb.NewStruct(availabilityFields(resp))
	if err != nil {
		log.Error("encode response failed", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	log.Debug("availability served",
		slog.String("clinic_id", clinicID.String()),
		slog.Int("year", year),
		slog.Int("month", month),
		slog.Int("slots", len(resp.Slots)),
	)
	return out, nil
}

func (s *AvailabilityServer) CheckSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CheckSlot"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, tod := stringField(req, "date"), stringField(req, "time")
	if !datePattern.MatchString(date) {
		return nil, status.Error(codes.InvalidArgument, "date must be YYYY-MM-DD")
	}
	if !timePattern.MatchString(tod) {
		return nil, status.Error(codes.InvalidArgument, "time must be HH:mm")
	}
	clinicID, err := clinicField(req)
	if err != nil {
		return nil, err
	}

	res, err := s.resolvers.Resolver(ctx, clinicID)
	if err != nil {
		return nil, s.toStatus(log, err, slog.String("clinic_id", clinicID.String()))
	}
	available, err := res.IsSlotAvailable(ctx, date, tod)
	if err != nil {
		return nil, s.toStatus(log, err, slog.String("clinic_id", clinicID.String()))
	}

	return structpb.NewStruct(map[string]any{
		"date":      date,
		"time":      tod,
		"available": available,
	})
}

func (s *AvailabilityServer) BookAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "BookAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	clinicID, err := clinicField(req)
	if err != nil {
		return nil, err
	}

	appt, err := s.booker.Book(ctx, appointments.BookInput{
		ClinicID:       clinicID,
		PetID:          stringField(req, "petId"),
		TutorID:        stringField(req, "tutorId"),
		ServiceType:    stringField(req, "serviceType"),
		Notes:          stringField(req, "notes"),
		Date:           stringField(req, "date"),
		Time:           stringField(req, "time"),
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.toStatus(log, err,
			slog.String("clinic_id", clinicID.String()),
			slog.String("date", stringField(req, "date")),
			slog.String("time", stringField(req, "time")),
		)
	}

	log.Info("appointment booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("clinic_id", appt.ClinicID.String()),
		slog.String("date", appt.Date().String()),
		slog.String("time", appt.SlotTime.String()),
	)
	return structpb.NewStruct(appointmentFields(appt))
}

func clinicField(req *structpb.Struct) (uuid.UUID, error) {
	raw := stringField(req, "clinicId")
	if raw == "" || raw == "default" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "clinicId must be a UUID")
	}
	return id, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (s *AvailabilityServer) toStatus(log *slog.Logger, err error, attrs ...any) error {
	var vErr *appointments.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, appointments.ErrSlotUnavailable), errors.Is(err, store.ErrConflict):
		log.Info("slot unavailable", attrs...)
		return status.Error(codes.FailedPrecondition, "That slot is no longer available. Pick a different time.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info("idempotency conflict", attrs...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, store.ErrNotFound):
		log.Info("not found", attrs...)
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request timed out", attrs...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	default:
		log.Error("request failed", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.Internal, "internal error")
	}
}

func availabilityFields(r availability.Response) map[string]any {
	slots := make([]any, 0, len(r.Slots))
	for _, sl := range r.Slots {
		slots = append(slots, map[string]any{
			"date":      sl.Date.String(),
			"time":      sl.Time.String(),
			"available": sl.Available,
		})
	}
	out := map[string]any{
		"clinicId":       r.ClinicID.String(),
		"year":           r.Year,
		"month":          int(r.Month),
		"availableSlots": slots,
		"workingHours": map[string]any{
			"start":        r.Hours.Open.String(),
			"end":          r.Hours.Close.String(),
			"slotDuration": r.Hours.SlotMinutes,
		},
	}
	if r.ServiceType != "" {
		out["serviceType"] = r.ServiceType
	}
	return out
}

func appointmentFields(a domain.Appointment) map[string]any {
	return map[string]any{
		"id":          a.ID.String(),
		"clinicId":    a.ClinicID.String(),
		"petId":       a.PetID,
		"tutorId":     a.TutorID,
		"serviceType": a.ServiceType,
		"notes":       a.Notes,
		"date":        a.Date().String(),
		"time":        a.SlotTime.String(),
		"status":      string(a.Status),
		"createdAt":   a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
