package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BookingHandler handles rider booking operations
type BookingHandler struct {
	bookings *services.BookingService
	audit    auditor
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings *services.BookingService, audit *services.AuditService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		audit:    auditor{svc: audit, logger: logger},
		logger:   logger,
	}
}

// CreateBooking reserves a cycle
// @Summary Reserve a cycle
// @Description Allocates the cycle and opens a pending booking from the first station to the last
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.BookingResult "Booking created"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 409 {object} map[string]interface{} "Cycle not available, penalty outstanding or booking already open"
// @Failure 502 {object} map[string]interface{} "Route estimate unavailable"
// @Security BearerAuth
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.bookings.ReserveCycle(c.Request.Context(), p, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditBookingCreated, "booking", &res.Booking.ID, map[string]interface{}{
		"cycle_id":      res.Cycle.ID,
		"is_round_trip": res.Booking.IsRoundTrip,
	})
	c.JSON(http.StatusCreated, res)
}

// CancelBooking cancels a pending booking
// @Router /api/v1/bookings/{id}/cancel [patch]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	res, err := h.bookings.CancelBooking(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditBookingCanceled, "booking", &id, nil)
	c.JSON(http.StatusOK, res)
}

// EndBooking records the rider's return. The end time is the server clock.
// @Router /api/v1/bookings/{id}/end [patch]
func (h *BookingHandler) EndBooking(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	res, err := h.bookings.EndBooking(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditBookingReturned, "booking", &id, map[string]interface{}{
		"penalty_applied": res.Booking.PenaltyApplied,
		"penalty_amount":  res.Booking.PenaltyAmount,
	})
	c.JSON(http.StatusOK, res)
}

// GetBooking returns one booking
func (h *BookingHandler) GetBooking(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// ListBookings runs the merged query
// @Param booking_id query string false "Booking ID"
// @Param cycle_id query string false "Cycle ID"
// @Param user_id query string false "User ID (staff only)"
// @Param end_location query string false "End station name"
// @Param status query string false "Comma separated statuses"
// @Router /api/v1/bookings [get]
func (h *BookingHandler) ListBookings(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}

	q, ok := bookingQuery(c)
	if !ok {
		return
	}
	q.Statuses = parseStatuses(c.Query("status"))

	bookings, err := h.bookings.ListBookings(c.Request.Context(), p, q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// ActiveBookings lists pending bookings (?user_id, ?cycle_id, ?end_location)
func (h *BookingHandler) ActiveBookings(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	q, ok := bookingQuery(c)
	if !ok {
		return
	}
	bookings, err := h.bookings.ActiveBookings(c.Request.Context(), p, q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// ReturnedBookings lists rides awaiting guard verification (?user_id, ?end_location)
func (h *BookingHandler) ReturnedBookings(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	q, ok := bookingQuery(c)
	if !ok {
		return
	}
	bookings, err := h.bookings.ReturnedBookings(c.Request.Context(), p, q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// StuckBookings lists pending bookings older than ?minutes= (default from
// config), optionally ending at ?end_location
func (h *BookingHandler) StuckBookings(c *gin.Context) {
	q, ok := bookingQuery(c)
	if !ok {
		return
	}
	var threshold time.Duration
	if raw := c.Query("minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			badRequest(c, "minutes must be a positive integer")
			return
		}
		threshold = time.Duration(minutes) * time.Minute
	}

	bookings, err := h.bookings.StuckBookings(c.Request.Context(), threshold, q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// AdminBookings lists bookings with rider and cycle names
func (h *BookingHandler) AdminBookings(c *gin.Context) {
	var (
		filter models.BookingFilter
		ok     bool
	)
	if filter.UserID, ok = optionalUUIDQuery(c, "user_id"); !ok {
		return
	}
	if filter.CycleID, ok = optionalUUIDQuery(c, "cycle_id"); !ok {
		return
	}
	filter.Statuses = parseStatuses(c.Query("status"))
	for _, st := range filter.Statuses {
		if !st.Valid() {
			badRequest(c, "unknown booking status: "+string(st))
			return
		}
	}

	bookings, err := h.bookings.AdminBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// bookingQuery reads the shared id and station filters. ?location is
// accepted as a shorter name for ?end_location.
func bookingQuery(c *gin.Context) (services.BookingQuery, bool) {
	var (
		q  services.BookingQuery
		ok bool
	)
	if q.BookingID, ok = optionalUUIDQuery(c, "booking_id"); !ok {
		return q, false
	}
	if q.CycleID, ok = optionalUUIDQuery(c, "cycle_id"); !ok {
		return q, false
	}
	if q.UserID, ok = optionalUUIDQuery(c, "user_id"); !ok {
		return q, false
	}
	q.EndLocation = c.Query("end_location")
	if q.EndLocation == "" {
		q.EndLocation = c.Query("location")
	}
	return q, true
}

func parseStatuses(raw string) []models.BookingStatus {
	if raw == "" {
		return nil
	}
	var out []models.BookingStatus
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, models.BookingStatus(part))
		}
	}
	return out
}
