package handlers

import (
	"net/http"
	"strconv"

	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/services"
	"github.com/campuscycle/booking-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// auditor writes audit rows without ever failing the request
type auditor struct {
	svc    *services.AuditService
	logger *logrus.Logger
}

func (a auditor) record(c *gin.Context, actor models.Principal, action, entityType string, entityID *uuid.UUID, details map[string]interface{}) {
	if !a.svc.Enabled() {
		return
	}
	actorID := actor.UserID
	if details == nil {
		details = map[string]interface{}{}
	}
	details["roles"] = actor.Roles

	err := a.svc.Record(c.Request.Context(), services.AuditEvent{
		UserID:     &actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		IPAddress:  utils.GetRealIP(c),
		UserAgent:  utils.GetUserAgent(c),
		Details:    details,
	})
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"action":  action,
			"user_id": actorID,
		}).WithError(err).Warn("AUDIT ERROR")
	}
}

// recentAuditEvents lists a user's latest audit rows (?limit, default 20)
func recentAuditEvents(svc *services.AuditService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := uuidParam(c, "userId")
		if !ok {
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit <= 0 || limit > 200 {
			badRequest(c, "limit must be between 1 and 200")
			return
		}

		events, err := svc.GetRecentEvents(c.Request.Context(), userID, limit)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
	}
}
