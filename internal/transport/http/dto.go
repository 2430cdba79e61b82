package httpapi

import (
	"fmt"
	"time"

	"vetclinic/backend/internal/availability"
	"vetclinic/backend/internal/domain"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type slotDTO struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type slotCheckDTO = slotDTO

type workingHoursDTO struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	SlotDuration int    `json:"slotDuration"`
}

type availabilityDTO struct {
	ClinicID       string          `json:"clinicId"`
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	ServiceType    string          `json:"serviceType,omitempty"`
	AvailableSlots []slotDTO       `json:"availableSlots"`
	WorkingHours   workingHoursDTO `json:"workingHours"`
}

func toAvailabilityDTO(r availability.Response) availabilityDTO {
	slots := make([]slotDTO, 0, len(r.Slots))
	for _, s := range r.Slots {
		slots = append(slots, slotDTO{Date: s.Date.String(), Time: s.Time.String(), Available: s.Available})
	}
	return availabilityDTO{
		ClinicID:       r.ClinicID.String(),
		Year:           r.Year,
		Month:          int(r.Month),
		ServiceType:    r.ServiceType,
		AvailableSlots: slots,
		WorkingHours: workingHoursDTO{
			Start:        r.Hours.Open.String(),
			End:          r.Hours.Close.String(),
			SlotDuration: r.Hours.SlotMinutes,
		},
	}
}

type appointmentDTO struct {
	ID          string    `json:"id"`
	ClinicID    string    `json:"clinicId"`
	PetID       string    `json:"petId"`
	TutorID     string    `json:"tutorId"`
	ServiceType string    `json:"serviceType,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toAppointmentDTO(a domain.Appointment) appointmentDTO {
	return appointmentDTO{
		ID:          a.ID.String(),
		ClinicID:    a.ClinicID.String(),
		PetID:       a.PetID,
		TutorID:     a.TutorID,
		ServiceType: a.ServiceType,
		Notes:       a.Notes,
		Date:        a.Date().String(),
		Time:        a.SlotTime.String(),
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type bookRequest struct {
	ClinicID    string `json:"clinicId"`
	PetID       string `json:"petId"`
	TutorID     string `json:"tutorId"`
	ServiceType string `json:"serviceType"`
	Notes       string `json:"notes"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type rangeDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type hoursDTO struct {
	WorkingDays []int     `json:"workingDays"`
	Open        string    `json:"open"`
	Close       string    `json:"close"`
	SlotMinutes int       `json:"slotMinutes"`
	LunchBreak  *rangeDTO `json:"lunchBreak"`
}

type hoursRequest struct {
	Name string `json:"name"`
	hoursDTO
}

func toHoursDTO(h domain.ClinicHours) hoursDTO {
	out := hoursDTO{
		WorkingDays: make([]int, 0, len(h.WorkingDays)),
		Open:        h.Open.String(),
		Close:       h.Close.String(),
		SlotMinutes: h.SlotMinutes,
	}
	for _, wd := range h.WorkingDays {
		out.WorkingDays = append(out.WorkingDays, int(wd))
	}
	if h.Lunch != nil {
		out.LunchBreak = &rangeDTO{Start: h.Lunch.Start.String(), End: h.Lunch.End.String()}
	}
	return out
}

// toDomain parses the textual fields; range checks are left to
// ClinicHours.Validate in the service.
func (r hoursRequest) toDomain() (domain.ClinicHours, error) {
	open, err := domain.ParseTimeOfDay(r.Open)
	if err != nil {
		return domain.ClinicHours{}, fmt.Errorf("open: %w", err)
	}
	closeAt, err := domain.ParseTimeOfDay(r.Close)
	if err != nil {
		return domain.ClinicHours{}, fmt.Errorf("close: %w", err)
	}
	h := domain.ClinicHours{
		Open:        open,
		Close:       closeAt,
		SlotMinutes: r.SlotMinutes,
	}
	for _, d := range r.WorkingDays {
		if d < 0 || d > 6 {
			return domain.ClinicHours{}, fmt.Errorf("invalid weekday %d", d)
		}
		h.WorkingDays = append(h.WorkingDays, time.Weekday(d))
	}
	if r.LunchBreak != nil {
		ls, err := domain.ParseTimeOfDay(r.LunchBreak.Start)
		if err != nil {
			return domain.ClinicHours{}, fmt.Errorf("lunchBreak.start: %w", err)
		}
		le, err := domain.ParseTimeOfDay(r.LunchBreak.End)
		if err != nil {
			return domain.ClinicHours{}, fmt.Errorf("lunchBreak.end: %w", err)
		}
		h.Lunch = &domain.TimeRange{Start: ls, End: le}
	}
	return h, nil
}
