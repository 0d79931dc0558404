package store

import (
	"errors"

	"prodtrack-backend/internal/model"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a guarded update matched no row because
	// the order changed status in the meantime.
	ErrConflict = errors.New("order was modified concurrently")
)

// OrderView is a work order joined with the display names of its references.
type OrderView struct {
	model.WorkOrder
	MachineName string `json:"machine_name"`
	PhaseName   string `json:"phase_name"`
	StatusName  string `json:"status_name"`
	ClientName  string `json:"client_name"`
}
