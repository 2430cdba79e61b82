package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"vetclinic/backend/internal/service/appointments"
	"vetclinic/backend/internal/store"
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

const idempotencyHeader = "Idempotency-Key"

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

// clinicParam reads an optional clinic id. Empty and "default" select the
// configured default clinic.
func clinicParam(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("clinicId must be a UUID")
	}
	return id, nil
}

func (s *Server) yearMonth(c echo.Context) (int, time.Month, error) {
	yearStr, monthStr := c.QueryParam("year"), c.QueryParam("month")
	if yearStr == "" || monthStr == "" {
		return 0, 0, badRequest("year and month are required, e.g. /api/availability?year=2025&month=1")
	}
	year, yErr := strconv.Atoi(yearStr)
	month, mErr := strconv.Atoi(monthStr)
	if yErr != nil || mErr != nil {
		return 0, 0, badRequest("year and month must be numbers")
	}
	if year < 1 {
		return 0, 0, badRequest("year must be positive")
	}
	if month < 1 || month > 12 {
		return 0, 0, badRequest("month must be between 1 and 12")
	}
	return year, time.Month(month), nil
}

func (s *Server) getAvailability(c echo.Context) error {
	year, month, err := s.yearMonth(c)
	if err != nil {
		return err
	}
	now := s.now()
	if year < now.Year() || (year == now.Year() && month < now.Month()) {
		return badRequest("availability for past months cannot be queried")
	}
	clinicID, err := clinicParam(c.QueryParam("clinicId"))
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	res, err := s.resolvers.Resolver(ctx, clinicID)
	if err != nil {
		return err
	}
	resp, err := res.Availability(ctx, year, month, c.QueryParam("serviceType"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    toAvailabilityDTO(resp),
		Message: fmt.Sprintf("availability for %d/%d computed", int(month), year),
	})
}

func (s *Server) checkSlot(c echo.Context) error {
	date, tod := c.QueryParam("date"), c.QueryParam("time")
	if date == "" || tod == "" {
		return badRequest("date and time are required, e.g. /api/availability/check?date=2025-01-15&time=09:00")
	}
	if !datePattern.MatchString(date) {
		return badRequest("date must be YYYY-MM-DD")
	}
	if !timePattern.MatchString(tod) {
		return badRequest("time must be HH:mm")
	}
	clinicID, err := clinicParam(c.QueryParam("clinicId"))
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	res, err := s.resolvers.Resolver(ctx, clinicID)
	if err != nil {
		return err
	}
	available, err := res.IsSlotAvailable(ctx, date, tod)
	if err != nil {
		return err
	}

	verdict := "is not available"
	if available {
		verdict = "is available"
	}
	return c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    slotCheckDTO{Date: date, Time: tod, Available: available},
		Message: fmt.Sprintf("slot %s on %s %s", tod, date, verdict),
	})
}

func (s *Server) bookAppointment(c echo.Context) error {
	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	clinicID, err := clinicParam(req.ClinicID)
	if err != nil {
		return err
	}

	appt, err := s.svc.Book(c.Request().Context(), appointments.BookInput{
		ClinicID:       clinicID,
		PetID:          req.PetID,
		TutorID:        req.TutorID,
		ServiceType:    req.ServiceType,
		Notes:          req.Notes,
		Date:           req.Date,
		Time:           req.Time,
		IdempotencyKey: c.Request().Header.Get(idempotencyHeader),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, envelope{
		Success: true,
		Data:    toAppointmentDTO(appt),
		Message: "appointment booked",
	})
}

func (s *Server) listAppointments(c echo.Context) error {
	year, month, err := s.yearMonth(c)
	if err != nil {
		return err
	}
	clinicID, err := clinicParam(c.QueryParam("clinicId"))
	if err != nil {
		return err
	}
	appts, err := s.svc.ListMonth(c.Request().Context(), clinicID, year, month)
	if err != nil {
		return err
	}
	out := make([]appointmentDTO, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentDTO(a))
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: out})
}

func appointmentParams(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, badRequest("appointment id must be a UUID")
	}
	clinicID, err := clinicParam(c.QueryParam("clinicId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return clinicID, id, nil
}

func (s *Server) getAppointment(c echo.Context) error {
	clinicID, id, err := appointmentParams(c)
	if err != nil {
		return err
	}
	appt, err := s.svc.Get(c.Request().Context(), clinicID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: toAppointmentDTO(appt)})
}

func (s *Server) updateAppointmentStatus(c echo.Context) error {
	clinicID, id, err := appointmentParams(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	appt, err := s.svc.UpdateStatus(c.Request().Context(), clinicID, id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    toAppointmentDTO(appt),
		Message: "appointment status updated",
	})
}

func (s *Server) deleteAppointment(c echo.Context) error {
	clinicID, id, err := appointmentParams(c)
	if err != nil {
		return err
	}
	if err := s.svc.Delete(c.Request().Context(), clinicID, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Message: "appointment deleted"})
}

func (s *Server) getClinicHours(c echo.Context) error {
	clinicID, err := clinicParam(c.Param("id"))
	if err != nil {
		return err
	}
	hours, err := s.svc.ClinicHours(c.Request().Context(), clinicID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: toHoursDTO(hours)})
}

func (s *Server) putClinicHours(c echo.Context) error {
	clinicID, err := clinicParam(c.Param("id"))
	if err != nil {
		return err
	}
	var req hoursRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	hours, err := req.toDomain()
	if err != nil {
		return badRequest(err.Error())
	}
	saved, err := s.svc.SetClinicHours(c.Request().Context(), clinicID, req.Name, hours)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    toHoursDTO(saved),
		Message: "clinic hours updated",
	})
}

// handleError renders every error as {success:false,error}. Domain errors
// map to their status; anything unrecognized is a 500 with a generic body.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := s.statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			slog.String("path", c.Request().URL.Path),
			slog.Any("err", err),
		)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, errorBody{Error: msg})
	}
	if werr != nil {
		s.log.Warn("write error response failed", slog.Any("err", werr))
	}
}

func (s *Server) statusFor(err error) (int, string) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, fmt.Sprint(httpErr.Message)
	}
	var vErr *appointments.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, vErr.Error()
	}

	switch {
	case errors.Is(err, appointments.ErrSlotUnavailable), errors.Is(err, store.ErrConflict):
		return http.StatusConflict, appointments.ErrSlotUnavailable.Error()
	case errors.Is(err, store.ErrIdempotencyConflict):
		return http.StatusConflict, store.ErrIdempotencyConflict.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
