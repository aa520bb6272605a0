package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/booking-engine/internal/booking"
	"github.com/hackgods/booking-engine/internal/schedule"
)

type SlotResponse struct {
	Time        string    `json:"time"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Available   bool      `json:"available"`
}

type DaySlotsResponse struct {
	Date  string         `json:"date"`
	Slots []SlotResponse `json:"slots"`
}

type SlotRangeResponse struct {
	Days []DaySlotsResponse `json:"days"`
}

type CreateBookingRequest struct {
	BusinessServiceID string  `json:"businessServiceId"`
	EmployeeID        string  `json:"employeeId"`
	ScheduledAt       string  `json:"scheduledAt"`
	Notes             *string `json:"notes,omitempty"`
	RequesterID       string  `json:"requesterId,omitempty"`
}

type BookingResponse struct {
	ID                uuid.UUID `json:"id"`
	BusinessID        uuid.UUID `json:"businessId"`
	EmployeeID        uuid.UUID `json:"employeeId"`
	BusinessServiceID uuid.UUID `json:"businessServiceId"`
	RequesterID       uuid.UUID `json:"requesterId"`
	ScheduledAt       time.Time `json:"scheduledAt"`
	EndsAt            time.Time `json:"endsAt"`
	Status            string    `json:"status"`
	Notes             *string   `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type AvailabilityDTO struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type EmployeeResponse struct {
	ID             uuid.UUID         `json:"id"`
	BusinessID     uuid.UUID         `json:"businessId"`
	Name           string            `json:"name"`
	Active         bool              `json:"active"`
	ServiceIDs     []uuid.UUID       `json:"serviceIds"`
	Availabilities []AvailabilityDTO `json:"availabilities"`
}

// UpdateEmployeeRequest fields left out of the JSON body keep their stored
// values; an explicit empty list clears them.
type UpdateEmployeeRequest struct {
	Availabilities []AvailabilityDTO `json:"availabilities"`
	ServiceIDs     []string          `json:"serviceIds"`
}

type BusinessHoursDTO struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	IsClosed  bool   `json:"isClosed"`
}

type BusinessHoursRequest struct {
	Hours []BusinessHoursDTO `json:"hours"`
}

type BusinessHoursResponse struct {
	BusinessID uuid.UUID          `json:"businessId"`
	Hours      []BusinessHoursDTO `json:"hours"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func toDaySlotsResponse(day booking.DaySlots) DaySlotsResponse {
	resp := DaySlotsResponse{
		Date:  day.Date.Format(schedule.DateLayout),
		Slots: make([]SlotResponse, 0, len(day.Slots)),
	}
	for _, s := range day.Slots {
		resp.Slots = append(resp.Slots, SlotResponse{
			Time:        s.Time.String(),
			ScheduledAt: s.Start,
			Available:   s.Available,
		})
	}
	return resp
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:                b.ID,
		BusinessID:        b.BusinessID,
		EmployeeID:        b.EmployeeID,
		BusinessServiceID: b.BusinessServiceID,
		RequesterID:       b.RequesterID,
		ScheduledAt:       b.ScheduledAt,
		EndsAt:            b.EndsAt,
		Status:            string(b.Status),
		Notes:             b.Notes,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func toEmployeeResponse(e *booking.Employee) EmployeeResponse {
	resp := EmployeeResponse{
		ID:             e.ID,
		BusinessID:     e.BusinessID,
		Name:           e.Name,
		Active:         e.Active,
		ServiceIDs:     e.ServiceIDs,
		Availabilities: make([]AvailabilityDTO, 0, len(e.Availabilities)),
	}
	if resp.ServiceIDs == nil {
		resp.ServiceIDs = []uuid.UUID{}
	}
	for _, a := range e.Availabilities {
		resp.Availabilities = append(resp.Availabilities, AvailabilityDTO{
			DayOfWeek: int(a.DayOfWeek),
			StartTime: a.StartTime.String(),
			EndTime:   a.EndTime.String(),
		})
	}
	return resp
}

func toBusinessHoursResponse(businessID uuid.UUID, hours []booking.BusinessHours) BusinessHoursResponse {
	resp := BusinessHoursResponse{
		BusinessID: businessID,
		Hours:      make([]BusinessHoursDTO, 0, len(hours)),
	}
	for _, h := range hours {
		dto := BusinessHoursDTO{DayOfWeek: int(h.DayOfWeek), IsClosed: h.IsClosed}
		if !h.IsClosed {
			dto.StartTime = h.StartTime.String()
			dto.EndTime = h.EndTime.String()
		}
		resp.Hours = append(resp.Hours, dto)
	}
	return resp
}
