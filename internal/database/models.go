package database

import (
	"time"
)

// Region is a named partition of locations in the destination schema.
// Location uniqueness is scoped to a region.
type Region struct {
	ID   int64
	Name string
}

// SourceTrap is a physical trap row from the legacy source schema.
// Columns there are mostly nullable, hence the pointer fields.
type SourceTrap struct {
	ID         int64
	TrapID     *string // preferred identifier, falls back to Name
	Name       *string
	Lat        *float64
	Lng        *float64
	SurveyYear *int
	CreatedAt  *time.Time
}

// SourceRecord is one detection observation from the source schema.
// RecordedAt is the raw text value of the legacy date column; it is
// parsed (and range-filtered) in application code.
type SourceRecord struct {
	ID             int64
	TrapID         *int64
	PestName       *string
	RecordedAt     *string
	DetectionCount *int
}

// Location is a destination trap site. Created by the reconciler,
// never updated or deleted by it.
type Location struct {
	ID              int64
	Name            string
	Lat             float64
	Lng             float64
	SurveyYear      int
	ContourRegionID int64
	CreatedAt       time.Time
	CreatedBy       string
}

// ModelCard maps a pest/species prediction model to its name and code.
// Read-only lookup table in the destination schema.
type ModelCard struct {
	ID   int64
	Name string
	Code string
}

// NewLocation is a pending location insert. It crosses the wire inside
// chunk tasks, so it carries JSON tags.
type NewLocation struct {
	Name            string  `json:"name"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	SurveyYear      int     `json:"survey_year"`
	ContourRegionID int64   `json:"contour_region_id"`
	CreatedBy       string  `json:"created_by"`
}

// NewTrapCount is a pending trap-count insert. SurveyDate is the
// calendar date in YYYY-MM-DD form.
type NewTrapCount struct {
	LocationID int64  `json:"location_id"`
	ModelID    int64  `json:"model_id"`
	SurveyDate string `json:"survey_date"`
	TrapCount  int    `json:"trap_count"`
}

// CountKey identifies an existing trap-count row in the destination.
type CountKey struct {
	LocationID int64
	ModelID    int64
	SurveyDate string
}
