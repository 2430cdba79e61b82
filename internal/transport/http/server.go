// Package httpapi serves the availability and booking API over echo.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"vetclinic/backend/internal/availability"
	"vetclinic/backend/internal/domain"
	"vetclinic/backend/internal/service/appointments"
)

type Resolvers interface {
	Resolver(ctx context.Context, clinicID uuid.UUID) (*availability.Resolver, error)
}

type AppointmentService interface {
	Book(ctx context.Context, in appointments.BookInput) (domain.Appointment, error)
	Get(ctx context.Context, clinicID, appointmentID uuid.UUID) (domain.Appointment, error)
	ListMonth(ctx context.Context, clinicID uuid.UUID, year int, month time.Month) ([]domain.Appointment, error)
	UpdateStatus(ctx context.Context, clinicID, appointmentID uuid.UUID, status string) (domain.Appointment, error)
	Delete(ctx context.Context, clinicID, appointmentID uuid.UUID) error
	ClinicHours(ctx context.Context, clinicID uuid.UUID) (domain.ClinicHours, error)
	SetClinicHours(ctx context.Context, clinicID uuid.UUID, name string, hours domain.ClinicHours) (domain.ClinicHours, error)
}

type Server struct {
	e         *echo.Echo
	resolvers Resolvers
	svc       AppointmentService
	log       *slog.Logger
	now       func() time.Time
	health    func(ctx context.Context) error

	rateLimit float64
	rateBurst int
}

type Option func(*Server)

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock sets the clock used to reject past months.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRateLimit limits requests per client IP. A non-positive limit disables
// limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.rateLimit = perSecond
		s.rateBurst = burst
	}
}

func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

func NewServer(resolvers Resolvers, svc AppointmentService, opts ...Option) *Server {
	s := &Server{
		resolvers: resolvers,
		svc:       svc,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "http"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(recovery(s.log))
	e.Use(middleware.RequestID())
	e.Use(requestLogger(s.log))

	e.GET("/healthz", s.healthz)

	api := e.Group("/api")
	if s.rateLimit > 0 {
		api.Use(rateLimiter(s.rateLimit, s.rateBurst))
	}

	api.GET("/availability", s.getAvailability)
	api.GET("/availability/check", s.checkSlot)

	api.POST("/appointments", s.bookAppointment)
	api.GET("/appointments", s.listAppointments)
	api.GET("/appointments/:id", s.getAppointment)
	api.PATCH("/appointments/:id/status", s.updateAppointmentStatus)
	api.DELETE("/appointments/:id", s.deleteAppointment)

	api.GET("/clinics/:id/hours", s.getClinicHours)
	api.PUT("/clinics/:id/hours", s.putClinicHours)

	s.e = e
	return s
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// Start blocks serving on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("http server started", slog.String("http_addr", addr))
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) healthz(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			s.log.Warn("health check failed", slog.Any("err", err))
			return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "unhealthy"})
		}
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Message: "ok"})
}

func rateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	if burst < 1 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
		},
	})
}
