package model

import "time"

// WorkOrder is one unit of production ("lavorazione") tracked through phases.
// Its primary key is the creation timestamp.
type WorkOrder struct {
	ID            time.Time `gorm:"primaryKey;precision:6" json:"id"`
	MachineID     string    `gorm:"size:16;not null;index" json:"machine_id"`
	PhaseID       PhaseID   `gorm:"size:16" json:"phase_id"`
	StatusID      StatusID  `gorm:"size:8;not null" json:"status_id"`
	Sheet         int       `gorm:"type:smallint" json:"sheet"`
	CoilCode      string    `gorm:"size:64" json:"coil_code"`
	CoilKg        int       `gorm:"type:smallint" json:"coil_kg"`
	Thickness     float64   `json:"thickness"`
	Width         float64   `json:"width"`
	Alloy         string    `gorm:"size:64" json:"alloy"`
	PhysicalState string    `gorm:"size:64" json:"physical_state"`
	Confirmation  string    `gorm:"size:32" json:"confirmation"`
	ClientID      string    `gorm:"size:32" json:"client_id"`
	RequestedKg   *int      `gorm:"type:smallint" json:"requested_kg"`
	WorkedKg      *int      `gorm:"type:smallint" json:"worked_kg"`
	Measure       float64   `json:"measure"`

	// Which timestamp is meaningful depends on the status.
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	QueuedAt  *time.Time `json:"queued_at"`
}
