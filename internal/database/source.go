package database

import (
	"context"
	"database/sql"
)

// SourceDB reads the legacy trap/record schema. All access is read-only.
type SourceDB struct {
	*sql.DB
}

// TrapsWithCoordinates retrieves all source traps that have both
// coordinates set. Traps without coordinates can never form a location
// identity key, so they are filtered at the query.
func (db *SourceDB) TrapsWithCoordinates(ctx context.Context) ([]*SourceTrap, error) {
	query := `
		SELECT id, trap_id, name, lat, lng, survey_year, created_at
		FROM weather.traps
		WHERE lat IS NOT NULL AND lng IS NOT NULL
		ORDER BY id
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traps []*SourceTrap
	for rows.Next() {
		var t SourceTrap
		if err := rows.Scan(
			&t.ID,
			&t.TrapID,
			&t.Name,
			&t.Lat,
			&t.Lng,
			&t.SurveyYear,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		traps = append(traps, &t)
	}

	return traps, rows.Err()
}

// DetectionRecords retrieves all detection records. The recorded_at
// column is legacy text, so date-range filtering happens after parsing
// in the reconciler rather than in SQL.
func (db *SourceDB) DetectionRecords(ctx context.Context) ([]*SourceRecord, error) {
	query := `
		SELECT id, trap_id, pest_name, recorded_at, detection_count
		FROM weather.records
		ORDER BY id
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SourceRecord
	for rows.Next() {
		var r SourceRecord
		if err := rows.Scan(
			&r.ID,
			&r.TrapID,
			&r.PestName,
			&r.RecordedAt,
			&r.DetectionCount,
		); err != nil {
			return nil, err
		}
		records = append(records, &r)
	}

	return records, rows.Err()
}

// TrapsByID indexes source traps by their primary key for record lookup.
func TrapsByID(traps []*SourceTrap) map[int64]*SourceTrap {
	byID := make(map[int64]*SourceTrap, len(traps))
	for _, t := range traps {
		byID[t.ID] = t
	}
	return byID
}
