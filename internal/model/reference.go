package model

// Phase is a production step ("fase di lavorazione").
type Phase struct {
	ID   PhaseID `gorm:"primaryKey;size:16" json:"id"`
	Name string  `gorm:"size:128;not null" json:"name"`
}

// Client is the customer a work order is produced for.
type Client struct {
	ID   string `gorm:"primaryKey;size:32" json:"id"`
	Name string `gorm:"size:256;not null" json:"name"`
}

// Status is the human-readable row behind a StatusID.
type Status struct {
	ID   StatusID `gorm:"primaryKey;size:8" json:"id"`
	Name string   `gorm:"size:64;not null" json:"name"`
}
