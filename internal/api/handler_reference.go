package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"prodtrack-backend/internal/store"
	"prodtrack-backend/internal/tracker"
)

// GetMachines handles the GET /api/machines request.
func GetMachines(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		machines, err := s.ListMachines(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machines"})
			return
		}
		c.JSON(http.StatusOK, machines)
	}
}

// GetPhases handles the GET /api/phases request.
func GetPhases(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		phases, err := s.ListPhases(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve phases"})
			return
		}
		c.JSON(http.StatusOK, phases)
	}
}

// GetBootstrap returns the reference lists and the device's remembered machine.
// When the lists cannot be loaded the station must select a machine again.
func (h *Handler) GetBootstrap(c *gin.Context) {
	b, err := h.tracker.Bootstrap(c.Request.Context(), c.GetHeader(DeviceHeader))
	if err != nil {
		if errors.Is(err, tracker.ErrReferenceUnavailable) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":           err.Error(),
				"needs_selection": true,
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type putSelectionRequest struct {
	MachineID string `json:"machine_id" binding:"required"`
}

// PutSelection remembers the machine chosen on the calling device.
func (h *Handler) PutSelection(c *gin.Context) {
	var req putSelectionRequest
	if !bindJSON(c, &req) {
		return
	}

	m, err := h.tracker.SelectMachine(c.Request.Context(), c.GetHeader(DeviceHeader), req.MachineID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": m})
}
