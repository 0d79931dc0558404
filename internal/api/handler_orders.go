package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"prodtrack-backend/internal/model"
	"prodtrack-backend/internal/parse"
	"prodtrack-backend/internal/tracker"
)

// GetOrders handles GET /api/machines/:machine_id/orders?date=YYYY-MM-DD.
func (h *Handler) GetOrders(c *gin.Context) {
	list, err := h.tracker.Orders(c.Request.Context(), tracker.Session{
		MachineID: c.Param("machine_id"),
		Date:      c.Query("date"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type startOrderRequest struct {
	PhaseID model.PhaseID `json:"phase_id" binding:"required"`
}

// StartOrder puts a waiting or outbound order into production.
func (h *Handler) StartOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req startOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.tracker.StartOrder(c.Request.Context(), id, req.PhaseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type terminateRequest struct {
	// WorkedKg is the operator's entry, a number or free text.
	WorkedKg    any    `json:"worked_kg"`
	Destination string `json:"destination"`
}

// TerminateOrder closes an order in production. Phases whose follow-up is
// routed by the operator answer 202 with a handoff unless a destination is
// given.
func (h *Handler) TerminateOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req terminateRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	res, err := h.tracker.Terminate(c.Request.Context(), id, parse.Text(req.WorkedKg, ""), req.Destination)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Handoff != nil {
		c.JSON(http.StatusAccepted, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

type reassignRequest struct {
	MachineID string `json:"machine_id" binding:"required"`
}

// ReassignOrder moves an order to another machine.
func (h *Handler) ReassignOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req reassignRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.tracker.Reassign(c.Request.Context(), id, req.MachineID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetHandoff returns a pending destination pick.
func (h *Handler) GetHandoff(c *gin.Context) {
	view, err := h.tracker.Handoff(c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type pickRequest struct {
	MachineID string `json:"machine_id" binding:"required"`
}

// PickDestination completes a handoff with the chosen machine.
func (h *Handler) PickDestination(c *gin.Context) {
	var req pickRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.tracker.PickDestination(c.Request.Context(), c.Param("token"), req.MachineID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CancelHandoff abandons a pending terminate.
func (h *Handler) CancelHandoff(c *gin.Context) {
	if err := h.tracker.CancelHandoff(c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
