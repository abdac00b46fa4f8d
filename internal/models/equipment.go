package models

import "time"

// Equipment is an asset record owned by the equipment registry. Work orders and
// schedules only hold its id.
type Equipment struct {
	ID           string    `bson:"_id" json:"id" yaml:"id"`
	Name         string    `bson:"name" json:"name" yaml:"name"`
	SerialNumber string    `bson:"serial_number" json:"serial_number" yaml:"serial_number"`
	Model        string    `bson:"model" json:"model" yaml:"model"`
	Manufacturer string    `bson:"manufacturer" json:"manufacturer" yaml:"manufacturer"`
	Location     string    `bson:"location" json:"location" yaml:"location"`
	Department   string    `bson:"department" json:"department" yaml:"department"`
	Status       string    `bson:"status" json:"status" yaml:"status"` // "operational", "out_of_service", "retired"
	CreatedAt    time.Time `bson:"created_at" json:"created_at" yaml:"-"`
}
