package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pricing-service/internal/models"
)

type breakdownRow struct {
	ID            string    `db:"id"`
	Fingerprint   string    `db:"fingerprint"`
	CorrelationID string    `db:"correlation_id"`
	BundleID      string    `db:"bundle_id"`
	Destination   string    `db:"destination"`
	Breakdown     []byte    `db:"breakdown"`
	CreatedAt     time.Time `db:"created_at"`
}

// InsertBreakdown persists a computed breakdown for replay and audit
func (s *Store) InsertBreakdown(ctx context.Context, id, fingerprint, destination string, b *models.PricingBreakdown) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pricing_breakdowns (id, fingerprint, correlation_id, bundle_id, destination, breakdown)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, fingerprint, b.CorrelationID, b.BundleID, destination, raw)
	return err
}

// ListBreakdownsByDestination retrieves recent breakdown records
func (s *Store) ListBreakdownsByDestination(ctx context.Context, destination string, limit int) ([]models.PricingBreakdown, error) {
	var rows []breakdownRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM pricing_breakdowns
		WHERE destination = $1 ORDER BY created_at DESC LIMIT $2`,
		destination, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.PricingBreakdown, 0, len(rows))
	for i := range rows {
		var b models.PricingBreakdown
		if err := json.Unmarshal(rows[i].Breakdown, &b); err != nil {
			return nil, fmt.Errorf("breakdown record %s corrupt: %w", rows[i].ID, err)
		}
		out = append(out, b)
	}
	return out, nil
}
