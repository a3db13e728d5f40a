package handlers

import (
	"net/http"

	"github.com/campuscycle/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GuardHandler handles the verification gate
type GuardHandler struct {
	verification *services.VerificationService
	bookings     *services.BookingService
	audit        auditor
	logger       *logrus.Logger
}

// NewGuardHandler creates a new GuardHandler
func NewGuardHandler(verification *services.VerificationService, bookings *services.BookingService, audit *services.AuditService, logger *logrus.Logger) *GuardHandler {
	return &GuardHandler{
		verification: verification,
		bookings:     bookings,
		audit:        auditor{svc: audit, logger: logger},
		logger:       logger,
	}
}

// MarkReceived confirms a returned cycle is physically back
// @Summary Mark a returned cycle as received
// @Tags Guard
// @Produce json
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} models.BookingResult
// @Failure 403 {object} map[string]interface{} "Not a guard"
// @Failure 409 {object} map[string]interface{} "Booking not awaiting verification"
// @Security BearerAuth
// @Router /api/v1/guard/mark-received/{bookingId} [patch]
func (h *GuardHandler) MarkReceived(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "bookingId")
	if !ok {
		return
	}

	res, err := h.verification.MarkReceived(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditCycleReceived, "booking", &id, map[string]interface{}{
		"cycle_id": res.Cycle.ID,
	})
	c.JSON(http.StatusOK, res)
}

// ReturnedBookings lists rides awaiting verification. Guards pass
// ?location= to see only the cycles returned to their station.
func (h *GuardHandler) ReturnedBookings(c *gin.Context) {
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
