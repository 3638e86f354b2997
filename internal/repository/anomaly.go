package repository

import (
	"context"
	"fmt"

	"fcgift/internal/models"
)

const maxListLimit = 500

// ReportOverCapacity records that fid was seen using more storage than it has.
// Repeat sightings refresh the latest numbers and bump the occurrence count.
func (r *Repository) ReportOverCapacity(ctx context.Context, fid int64, capacity int64, used int64) error {
	now := r.now().UTC()
	query := `
		INSERT INTO over_capacity (fid, capacity, used, first_seen, last_seen, occurrences)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(fid) DO UPDATE SET
			capacity = excluded.capacity,
			used = excluded.used,
			last_seen = excluded.last_seen,
			occurrences = over_capacity.occurrences + 1;
	`
	if _, err := r.db.ExecContext(ctx, query, fid, capacity, used, now, now); err != nil {
		return fmt.Errorf("failed to record over-capacity fid %d: %w", fid, err)
	}
	return nil
}

// ListOverCapacity returns the most recently seen over-capacity accounts.
func (r *Repository) ListOverCapacity(ctx context.Context, limit int) ([]*models.OverCapacityReport, error) {
	if limit <= 0 {
		return []*models.OverCapacityReport{}, nil
	}
	limit = min(limit, maxListLimit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT fid, capacity, used, first_seen, last_seen, occurrences
		FROM over_capacity
		ORDER BY last_seen DESC, fid ASC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query over-capacity accounts: %w", err)
	}
	defer rows.Close()

	reports := make([]*models.OverCapacityReport, 0, limit)
	for rows.Next() {
		report := &models.OverCapacityReport{}
		if err := rows.Scan(&report.FID, &report.Capacity, &report.Used, &report.FirstSeen, &report.LastSeen, &report.Occurrences); err != nil {
			return nil, fmt.Errorf("failed to scan over-capacity row: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return reports, nil
}
