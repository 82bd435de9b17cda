package models

import (
	"time"

	"github.com/securepatrol-id/securepatrol-backend/pkg/enums"
)

// ClassificationResult is the scene-classification verdict attached to a log,
// either produced by the external classifier or substituted as a degraded
// placeholder when the classifier is unreachable.
type ClassificationResult struct {
	Status        enums.PatrolStatus `json:"status"`
	Summary       string             `json:"summary"`
	ItemsDetected []string           `json:"items_detected"`
}

// Coordinates are the device coordinates captured at submit time.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PatrolLog is an immutable check-in record. Submitter and location names are
// denormalized at submit time so historical entries survive entity deletion.
type PatrolLog struct {
	ID            string                `json:"id"`
	SubmitterID   string                `json:"submitter_id"`
	SubmitterName string                `json:"submitter_name"`
	LocationID    string                `json:"location_id"`
	LocationName  string                `json:"location_name"`
	Timestamp     time.Time             `json:"timestamp"`
	ImageRef      string                `json:"image_ref"`
	Analysis      *ClassificationResult `json:"analysis"`
	Notes         string                `json:"notes"`
	Coordinates   *Coordinates          `json:"coordinates,omitempty"`
}
