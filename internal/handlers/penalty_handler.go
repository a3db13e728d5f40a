package handlers

import (
	"net/http"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PenaltyHandler handles penalty settlement and payment records
type PenaltyHandler struct {
	settlement *services.SettlementService
	audit      auditor
	logger     *logrus.Logger
}

// NewPenaltyHandler creates a new PenaltyHandler
func NewPenaltyHandler(settlement *services.SettlementService, audit *services.AuditService, logger *logrus.Logger) *PenaltyHandler {
	return &PenaltyHandler{
		settlement: settlement,
		audit:      auditor{svc: audit, logger: logger},
		logger:     logger,
	}
}

// SettlePenalty applies a captured payment to a user's balance
// @Summary Settle a penalty
// @Description Called after the payment processor captures funds; amounts are in paise
// @Tags Penalty
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param request body models.SettlePenaltyRequest true "Payment"
// @Success 200 {object} models.SettlementResult
// @Failure 409 {object} map[string]interface{} "Payment reference already applied"
// @Security BearerAuth
// @Router /api/v1/penalty/{userId} [patch]
func (h *PenaltyHandler) SettlePenalty(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	var req models.SettlePenaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	res, err := h.settlement.SettlePenalty(c.Request.Context(), p, userID, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditPenaltySettled, "user", &userID, map[string]interface{}{
		"amount_paid":       req.AmountPaid,
		"payment_reference": req.PaymentReference,
	})
	c.JSON(http.StatusOK, gin.H{
		"user":        models.NewUserResponse(res.User, h.settlement.Currency()),
		"transaction": res.Transaction,
	})
}

// Me returns the caller's account and outstanding penalty
func (h *PenaltyHandler) Me(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	user, err := h.settlement.Profile(c.Request.Context(), p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NewUserResponse(user, h.settlement.Currency()))
}

// ListTransactions lists payment records (?user_id, ?booking_id)
func (h *PenaltyHandler) ListTransactions(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var filter models.TransactionFilter
	if filter.UserID, ok = optionalUUIDQuery(c, "user_id"); !ok {
		return
	}
	if filter.BookingID, ok = optionalUUIDQuery(c, "booking_id"); !ok {
		return
	}

	txns, err := h.settlement.ListTransactions(c.Request.Context(), p, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
}

// GetTransaction returns one payment record
func (h *PenaltyHandler) GetTransaction(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	txn, err := h.settlement.GetTransaction(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// GetPenalty returns a user's outstanding balance (self or admin)
func (h *PenaltyHandler) GetPenalty(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	user, err := h.settlement.GetPenalty(c.Request.Context(), p, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NewUserResponse(user, h.settlement.Currency()))
}
