package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/booking-engine/internal/booking"
	"github.com/hackgods/booking-engine/internal/schedule"
)

const (
	headerUserID     = "X-User-Id"
	headerBusinessID = "X-Business-Id"
)

type handlers struct {
	svc *booking.Service
	log *zap.Logger
}

func parseUUIDParam(w http.ResponseWriter, value, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *handlers) getSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	employeeID, ok := parseUUIDParam(w, q.Get("employeeId"), "employeeId")
	if !ok {
		return
	}
	serviceID, ok := parseUUIDParam(w, q.Get("businessServiceId"), "businessServiceId")
	if !ok {
		return
	}

	day, err := h.svc.GetAvailableSlots(r.Context(), booking.SlotQuery{
		EmployeeID: employeeID,
		ServiceID:  serviceID,
		Date:       q.Get("date"),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, toDaySlotsResponse(*day))
}

func (h *handlers) getSlotsRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	employeeID, ok := parseUUIDParam(w, q.Get("employeeId"), "employeeId")
	if !ok {
		return
	}
	serviceID, ok := parseUUIDParam(w, q.Get("businessServiceId"), "businessServiceId")
	if !ok {
		return
	}

	days, err := h.svc.GetAvailableSlotsRange(r.Context(), booking.RangeQuery{
		EmployeeID: employeeID,
		ServiceID:  serviceID,
		From:       q.Get("from"),
		To:         q.Get("to"),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	resp := SlotRangeResponse{Days: make([]DaySlotsResponse, 0, len(days))}
	for _, d := range days {
		resp.Days = append(resp.Days, toDaySlotsResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	serviceID, ok := parseUUIDParam(w, req.BusinessServiceID, "businessServiceId")
	if !ok {
		return
	}
	employeeID, ok := parseUUIDParam(w, req.EmployeeID, "employeeId")
	if !ok {
		return
	}

	requester := r.Header.Get(headerUserID)
	if requester == "" {
		requester = req.RequesterID
	}
	requesterID, ok := parseUUIDParam(w, requester, "requesterId")
	if !ok {
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_scheduledAt", "scheduledAt must be an ISO-8601 timestamp with offset")
		return
	}

	b, err := h.svc.CreateBooking(r.Context(), booking.CreateBookingInput{
		EmployeeID:  employeeID,
		ServiceID:   serviceID,
		RequesterID: requesterID,
		ScheduledAt: scheduledAt,
		Notes:       req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func (h *handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "bookingId")
	if !ok {
		return
	}

	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// transition serves POST /bookings/{id}/{action}.
func (h *handlers) transition(to booking.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "bookingId")
		if !ok {
			return
		}

		b, err := h.svc.Transition(r.Context(), id, to)
		if err != nil {
			writeServiceError(w, r, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func (h *handlers) getEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "employeeId")
	if !ok {
		return
	}

	e, err := h.svc.GetEmployee(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeResponse(e))
}

func (h *handlers) updateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, chi.URLParam(r, "id"), "employeeId")
	if !ok {
		return
	}

	var req UpdateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	var in booking.UpdateEmployeeInput
	if req.Availabilities != nil {
		in.Availabilities = make([]booking.EmployeeAvailability, 0, len(req.Availabilities))
		for i, a := range req.Availabilities {
			start, end, err := parseRange(a.StartTime, a.EndTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_availability", fmt.Sprintf("availabilities[%d]: %v", i, err))
				return
			}
			in.Availabilities = append(in.Availabilities, booking.EmployeeAvailability{
				DayOfWeek: time.Weekday(a.DayOfWeek),
				StartTime: start,
				EndTime:   end,
			})
		}
	}
	if req.ServiceIDs != nil {
		in.ServiceIDs = make([]uuid.UUID, 0, len(req.ServiceIDs))
		for _, s := range req.ServiceIDs {
			serviceID, ok := parseUUIDParam(w, s, "serviceIds")
			if !ok {
				return
			}
			in.ServiceIDs = append(in.ServiceIDs, serviceID)
		}
	}

	e, err := h.svc.UpdateEmployee(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeResponse(e))
}

func (h *handlers) getBusinessHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := parseUUIDParam(w, r.Header.Get(headerBusinessID), "businessId")
	if !ok {
		return
	}

	hours, err := h.svc.GetBusinessHours(r.Context(), businessID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBusinessHoursResponse(businessID, hours))
}

func (h *handlers) setBusinessHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := parseUUIDParam(w, r.Header.Get(headerBusinessID), "businessId")
	if !ok {
		return
	}

	var req BusinessHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	hours := make([]booking.BusinessHours, 0, len(req.Hours))
	for i, dto := range req.Hours {
		bh := booking.BusinessHours{
			BusinessID: businessID,
			DayOfWeek:  time.Weekday(dto.DayOfWeek),
			IsClosed:   dto.IsClosed,
		}
		if !dto.IsClosed {
			start, end, err := parseRange(dto.StartTime, dto.EndTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_hours", fmt.Sprintf("hours[%d]: %v", i, err))
				return
			}
			bh.StartTime, bh.EndTime = start, end
		}
		hours = append(hours, bh)
	}

	saved, err := h.svc.SetBusinessHours(r.Context(), businessID, hours)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBusinessHoursResponse(businessID, saved))
}

func parseRange(start, end string) (schedule.Clock, schedule.Clock, error) {
	s, err := schedule.ParseClock(start)
	if err != nil {
		return 0, 0, fmt.Errorf("startTime: %w", err)
	}
	e, err := schedule.ParseClock(end)
	if err != nil {
		return 0, 0, fmt.Errorf("endTime: %w", err)
	}
	return s, e, nil
}
