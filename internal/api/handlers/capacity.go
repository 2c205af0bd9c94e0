package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/licenses"
	"go.uber.org/zap"
)

type CapacityRequest struct {
	Capacity *int `json:"capacity" binding:"required"`
}

// SetWebinarCapacity enables the webinar feature for an account at 500 or
// 1000 attendees; any other capacity disables it.
func (h *Handler) SetWebinarCapacity(c *gin.Context) {
	account := c.Param("account")

	var req CapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := licenses.SetCapacity(c.Request.Context(), h.zoom, account, *req.Capacity)
	if err != nil {
		var verr *gateway.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		case errors.Is(err, gateway.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		default:
			h.logger.Error("Failed to set webinar capacity",
				zap.String("account", account),
				zap.Int("capacity", *req.Capacity),
				zap.Error(err),
			)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to update account"})
		}
		return
	}

	h.metrics.RecordLicenseAction("set_capacity")
	h.logger.Info("Webinar capacity updated",
		zap.String("account", account),
		zap.Int("capacity", *req.Capacity),
		zap.String("by", c.GetString("username")),
	)
	c.Status(http.StatusNoContent)
}
