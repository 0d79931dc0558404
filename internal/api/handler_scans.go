package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"prodtrack-backend/internal/model"
	"prodtrack-backend/internal/scan"
	"prodtrack-backend/internal/tracker"
)

// maxImageBytes bounds an uploaded sheet photo.
const maxImageBytes = 10 << 20

// PostScan extracts a photographed sheet and stages it. The image comes as
// the "image" field of a multipart form or as the raw request body.
func (h *Handler) PostScan(c *gin.Context) {
	image, err := readImage(c)
	if err != nil {
		writeError(c, fmt.Errorf("%w: %v", tracker.ErrInvalidInput, err))
		return
	}

	staged, err := h.scans.Scan(c.Request.Context(), image)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, staged)
}

func readImage(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes)

	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("missing image field: %v", err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	image, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	return image, nil
}

// GetScan returns a staged sheet.
func (h *Handler) GetScan(c *gin.Context) {
	staged, err := h.scans.Lookup(c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, staged)
}

// PutScan replaces a staged sheet with the operator's corrections.
func (h *Handler) PutScan(c *gin.Context) {
	var sheet scan.Sheet
	if !bindJSON(c, &sheet) {
		return
	}
	staged, err := h.scans.Update(c.Param("token"), sheet)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, staged)
}

// DeleteScan discards a staged sheet.
func (h *Handler) DeleteScan(c *gin.Context) {
	if err := h.scans.Discard(c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type startScanRequest struct {
	MachineID string        `json:"machine_id" binding:"required"`
	PhaseID   model.PhaseID `json:"phase_id" binding:"required"`
	Sheet     *scan.Sheet   `json:"sheet"`
}

// StartScan creates an order in production from a staged sheet.
func (h *Handler) StartScan(c *gin.Context) {
	var req startScanRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.tracker.StartScanned(c.Request.Context(), c.Param("token"), req.MachineID, req.PhaseID, req.Sheet)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}
