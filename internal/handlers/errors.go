package handlers

import (
	"net/http"

	"github.com/campuscycle/booking-backend/internal/middleware"
	"github.com/campuscycle/booking-backend/internal/models"
	"github.com/campuscycle/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindValidation: http.StatusBadRequest,
	services.KindConflict:   http.StatusConflict,
	services.KindNotFound:   http.StatusNotFound,
	services.KindForbidden:  http.StatusForbidden,
	services.KindDependency: http.StatusBadGateway,
	services.KindInternal:   http.StatusInternalServerError,
}

// respondError writes the {"error": code, "message": text} envelope for a
// service error. Internal causes never reach the client.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	svcErr := services.AsError(err)
	status, ok := statusByKind[svcErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"code": svcErr.Code,
		}).WithError(svcErr.Err).Error("Request failed")
	}
	c.JSON(status, gin.H{
		"error":   svcErr.Code,
		"message": svcErr.Message,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   services.CodeValidation,
		"message": message,
	})
}

// currentPrincipal fetches the caller, answering 401 when the auth
// middleware did not run
func currentPrincipal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Unauthorized",
		})
	}
	return p, ok
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUIDQuery(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "Invalid "+name)
		return nil, false
	}
	return &id, true
}
