package model

import "time"

// StationSelection remembers the machine last chosen on a device.
type StationSelection struct {
	DeviceID  string    `gorm:"primaryKey;size:128"`
	MachineID string    `gorm:"size:16;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
