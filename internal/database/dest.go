package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DestDB reads and appends to the destination (models) schema. The
// reconciler only ever inserts; no update or delete is issued here.
type DestDB struct {
	*sql.DB
}

// FindRegionByName looks up a region by case-insensitive name match.
// Returns nil when no region matches.
func (db *DestDB) FindRegionByName(ctx context.Context, name string) (*Region, error) {
	query := `
		SELECT id, name
		FROM models.contour_regions
		WHERE LOWER(name) = LOWER($1)
		ORDER BY id
		LIMIT 1
	`

	var r Region
	err := db.QueryRowContext(ctx, query, strings.TrimSpace(name)).Scan(&r.ID, &r.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// CreateRegion inserts a new region and returns it.
func (db *DestDB) CreateRegion(ctx context.Context, name string) (*Region, error) {
	query := `
		INSERT INTO models.contour_regions (name)
		VALUES ($1)
		RETURNING id, name
	`

	var r Region
	if err := db.QueryRowContext(ctx, query, strings.TrimSpace(name)).Scan(&r.ID, &r.Name); err != nil {
		return nil, fmt.Errorf("failed to create region: %w", err)
	}

	return &r, nil
}

// LocationsByRegion retrieves destination locations for a region,
// optionally restricted to one survey year.
func (db *DestDB) LocationsByRegion(ctx context.Context, regionID int64, surveyYear *int) ([]*Location, error) {
	query := `
		SELECT id, name, lat, lng, survey_year, contour_region_id, created_at, created_by
		FROM models.locations
		WHERE contour_region_id = $1
	`
	args := []interface{}{regionID}

	if surveyYear != nil {
		query += ` AND survey_year = $2`
		args = append(args, *surveyYear)
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []*Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(
			&l.ID,
			&l.Name,
			&l.Lat,
			&l.Lng,
			&l.SurveyYear,
			&l.ContourRegionID,
			&l.CreatedAt,
			&l.CreatedBy,
		); err != nil {
			return nil, err
		}
		locations = append(locations, &l)
	}

	return locations, rows.Err()
}

// ExistingCountKeys retrieves the identity keys of trap-count rows
// already present for a region, optionally bounded to [from, to).
func (db *DestDB) ExistingCountKeys(ctx context.Context, regionID int64, from, to *time.Time) ([]CountKey, error) {
	query := `
		SELECT tc.location_id, tc.model_id, to_char(tc.survey_date, 'YYYY-MM-DD')
		FROM models.trap_counts tc
		JOIN models.locations l ON l.id = tc.location_id
		WHERE l.contour_region_id = $1
	`
	args := []interface{}{regionID}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND tc.survey_date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND tc.survey_date < $%d", len(args))
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []CountKey
	for rows.Next() {
		var k CountKey
		if err := rows.Scan(&k.LocationID, &k.ModelID, &k.SurveyDate); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// FindModelCardByCode looks up a model card by exact code.
// Returns nil when no card matches.
func (db *DestDB) FindModelCardByCode(ctx context.Context, code string) (*ModelCard, error) {
	query := `
		SELECT id, name, code
		FROM models.model_cards
		WHERE code = $1
		ORDER BY id
		LIMIT 1
	`

	var m ModelCard
	err := db.QueryRowContext(ctx, query, code).Scan(&m.ID, &m.Name, &m.Code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// SearchModelCard looks up a model card whose name or code contains the
// term, case-insensitively. Ambiguous matches resolve to the lowest id
// so repeat runs see the same card.
func (db *DestDB) SearchModelCard(ctx context.Context, term string) (*ModelCard, error) {
	query := `
		SELECT id, name, code
		FROM models.model_cards
		WHERE name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%'
		ORDER BY id
		LIMIT 1
	`

	var m ModelCard
	err := db.QueryRowContext(ctx, query, term).Scan(&m.ID, &m.Name, &m.Code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// InsertLocations bulk-inserts pending locations as a single statement.
// ON CONFLICT DO NOTHING keeps redelivered chunks row-safe: a row whose
// identity key already exists is skipped, never duplicated.
func (db *DestDB) InsertLocations(ctx context.Context, locations []NewLocation) error {
	if len(locations) == 0 {
		return nil
	}

	var (
		values []string
		args   []interface{}
	)
	for i, loc := range locations {
		base := i * 6
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, loc.Name, loc.Lat, loc.Lng, loc.SurveyYear, loc.ContourRegionID, loc.CreatedBy)
	}

	query := `
		INSERT INTO models.locations (name, lat, lng, survey_year, contour_region_id, created_by)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT DO NOTHING
	`

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert locations: %w", err)
	}

	return nil
}

// InsertTrapCounts bulk-inserts pending trap counts as a single statement.
func (db *DestDB) InsertTrapCounts(ctx context.Context, counts []NewTrapCount) error {
	if len(counts) == 0 {
		return nil
	}

	var (
		values []string
		args   []interface{}
	)
	for i, tc := range counts {
		base := i * 4
		values = append(values, fmt.Sprintf("($%d, $%d, $%d::date, $%d)",
			base+1, base+2, base+3, base+4))
		args = append(args, tc.LocationID, tc.ModelID, tc.SurveyDate, tc.TrapCount)
	}

	query := `
		INSERT INTO models.trap_counts (location_id, model_id, survey_date, trap_count)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT DO NOTHING
	`

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert trap counts: %w", err)
	}

	return nil
}
