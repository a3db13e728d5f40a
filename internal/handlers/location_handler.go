package handlers

import (
	"net/http"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocationHandler handles the station directory
type LocationHandler struct {
	locations *services.LocationService
	audit     auditor
	logger    *logrus.Logger
}

// NewLocationHandler creates a new LocationHandler
func NewLocationHandler(locations *services.LocationService, audit *services.AuditService, logger *logrus.Logger) *LocationHandler {
	return &LocationHandler{
		locations: locations,
		audit:     auditor{svc: audit, logger: logger},
		logger:    logger,
	}
}

// ListLocations returns every station (public)
func (h *LocationHandler) ListLocations(c *gin.Context) {
	locs, err := h.locations.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": locs, "count": len(locs)})
}

// LookupLocation finds the station at or near [lng, lat] (public)
func (h *LocationHandler) LookupLocation(c *gin.Context) {
	var req models.LookupLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "coordinates must be [longitude, latitude]")
		return
	}

	loc, err := h.locations.Lookup(c.Request.Context(), models.Point{
		Longitude: req.Coordinates[0],
		Latitude:  req.Coordinates[1],
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

// GetLocation returns one station
func (h *LocationHandler) GetLocation(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	loc, err := h.locations.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, loc)
}

// CreateLocation adds a station
func (h *LocationHandler) CreateLocation(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req models.CreateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	loc, err := h.locations.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditLocationModified, "location", &loc.ID, map[string]interface{}{"op": "create", "name": loc.Name})
	c.JSON(http.StatusCreated, loc)
}

// UpdateLocation moves a station identified by name
func (h *LocationHandler) UpdateLocation(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var req models.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	loc, err := h.locations.Update(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditLocationModified, "location", &loc.ID, map[string]interface{}{"op": "update", "name": loc.Name})
	c.JSON(http.StatusOK, loc)
}

// DeleteLocation removes a station
func (h *LocationHandler) DeleteLocation(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.locations.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.audit.record(c, p, services.AuditLocationModified, "location", &id, map[string]interface{}{"op": "delete"})
	c.JSON(http.StatusOK, gin.H{"message": "Location deleted"})
}
