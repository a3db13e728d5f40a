package handlers

import (
	"net/http"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CycleHandler handles the cycle inventory
type CycleHandler struct {
	inventory *services.InventoryService
	audit     auditor
	logger    *logrus.Logger
}

// NewCycleHandler creates a new CycleHandler
func NewCycleHandler(inventory *services.InventoryService, audit *services.AuditService, logger *logrus.Logger) *CycleHandler {
	return &CycleHandler{
		inventory: inventory,
		audit:     auditor{svc: audit, logger: logger},
		logger:    logger,
	}
}

// ListCycles lists cycles filtered by ?cycle_id, ?location and ?status
func (h *CycleHandler) ListCycles(c *gin.Context) {
	cycleID, ok := optionalUUIDQuery(c, "cycle_id")
	if !ok {
		return
	}
	cycles, err := h.inventory.ListCycles(c.Request.Context(), services.CycleQuery{
		CycleID:  cycleID,
		Location: c.Query("location"),
		Status:   c.Query("status"),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles, "count": len(cycles)})
}

// ListAvailable lists bookable cycles. With ?location it returns the first
// available cycle at that station.
func (h *CycleHandler) ListAvailable(c *gin.Context) {
	if location := c.Query("location"); location != "" {
		cycle, err := h.inventory.FindAvailableNear(c.Request.Context(), location)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"cycles": []models.Cycle{*cycle}, "count": 1})
		return
	}

	cycles, err := h.inventory.ListAvailable(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles, "count": len(cycles)})
}

// AddCycle registers a cycle at a station
// @Router /api/v1/cycles [post]
func (h *CycleHandler) AddCycle(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req models.CreateCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	cycle, err := h.inventory.AddCycle(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditCycleAdded, "cycle", &cycle.ID, map[string]interface{}{
		"cycle_name": cycle.CycleName,
		"location":   req.Location,
	})
	c.JSON(http.StatusCreated, cycle)
}

// UpdateStatus toggles maintenance
// @Router /api/v1/cycles/{id}/status [patch]
func (h *CycleHandler) UpdateStatus(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req models.UpdateCycleStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	cycle, err := h.inventory.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditCycleStatus, "cycle", &id, map[string]interface{}{"status": req.Status})
	c.JSON(http.StatusOK, cycle)
}

// RetireCycle soft-deletes a cycle
func (h *CycleHandler) RetireCycle(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.inventory.Retire(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditCycleRetired, "cycle", &id, nil)
	c.JSON(http.StatusOK, gin.H{"message": "Cycle retired"})
}
