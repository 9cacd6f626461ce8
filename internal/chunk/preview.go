package chunk

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/agscout/trapsync/internal/database"
)

// DefaultPreviewLimit bounds the preview artifact.
const DefaultPreviewLimit = 100

// WritePreview serializes the first rows of the pending batches to a
// human-readable text file for dry-run inspection.
func WritePreview(path string, limit int, locations []database.NewLocation, counts []database.NewTrapCount) error {
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, "trapsync dry-run preview (%s)\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "pending locations: %d, pending trap counts: %d, preview limit: %d\n", len(locations), len(counts), limit)

	b.WriteString("\n== locations ==\n")
	for i, loc := range locations {
		if i >= limit {
			fmt.Fprintf(&b, "... %d more\n", len(locations)-limit)
			break
		}
		fmt.Fprintf(&b, "%4d  name=%q lat=%.6f lng=%.6f survey_year=%d contour_region_id=%d created_by=%s\n",
			i+1, loc.Name, loc.Lat, loc.Lng, loc.SurveyYear, loc.ContourRegionID, loc.CreatedBy)
	}

	b.WriteString("\n== trap counts ==\n")
	for i, tc := range counts {
		if i >= limit {
			fmt.Fprintf(&b, "... %d more\n", len(counts)-limit)
			break
		}
		fmt.Fprintf(&b, "%4d  location_id=%d model_id=%d survey_date=%s trap_count=%d\n",
			i+1, tc.LocationID, tc.ModelID, tc.SurveyDate, tc.TrapCount)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write preview file: %w", err)
	}
	return nil
}
