package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"prodtrack-backend/internal/scan"
	"prodtrack-backend/internal/store"
	"prodtrack-backend/internal/tracker"
	"prodtrack-backend/internal/workflow"
)

// DeviceHeader identifies the station a request comes from.
const DeviceHeader = "X-Device-ID"

// ShareOptions configures the cross-device link endpoint.
type ShareOptions struct {
	PublicURL  string
	QREndpoint string
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	tracker *tracker.Service
	scans   *scan.Service
	webpush *webpush.Options
	share   ShareOptions
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, t *tracker.Service, scans *scan.Service, webpushOptions *webpush.Options, share ShareOptions) *Handler {
	return &Handler{
		store:   s,
		tracker: t,
		scans:   scans,
		webpush: webpushOptions,
		share:   share,
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, scan.ErrNotStaged),
		errors.Is(err, tracker.ErrNoHandoff):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, tracker.ErrInvalidInput),
		errors.Is(err, workflow.ErrDestinationRequired),
		errors.Is(err, workflow.ErrDestinationNotAllowed),
		errors.Is(err, scan.ErrNotAnImage):
		return http.StatusBadRequest
	case errors.Is(err, scan.ErrUnreadableSheet):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scan.ErrExtractionFailed):
		return http.StatusBadGateway
	case errors.Is(err, scan.ErrDisabled),
		errors.Is(err, tracker.ErrReferenceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with the status matching err.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// orderID parses the :order_id path parameter.
func orderID(c *gin.Context) (time.Time, bool) {
	id, err := time.Parse(time.RFC3339Nano, c.Param("order_id"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: order id must be an RFC 3339 timestamp", tracker.ErrInvalidInput))
		return time.Time{}, false
	}
	return id.UTC(), true
}

// bindJSON decodes the request body, aborting with 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, fmt.Errorf("%w: %v", tracker.ErrInvalidInput, err))
		return false
	}
	return true
}
