package store

import (
	"context"
	"database/sql"
	"time"

	"pricing-service/internal/models"

	"github.com/lib/pq"
)

type bundleRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Provider     string         `db:"provider"`
	BaseCost     float64        `db:"base_cost"`
	Currency     string         `db:"currency"`
	DataAmountMB int64          `db:"data_amount_mb"`
	IsUnlimited  bool           `db:"is_unlimited"`
	ValidityDays int            `db:"validity_days"`
	Countries    pq.StringArray `db:"countries"`
	Region       string         `db:"region"`
	Groups       pq.StringArray `db:"groups"`
	IsActive     bool           `db:"is_active"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *bundleRow) toModel() models.Bundle {
	return models.Bundle{
		ID:           r.ID,
		Name:         r.Name,
		Provider:     r.Provider,
		BaseCost:     r.BaseCost,
		Currency:     r.Currency,
		DataAmountMB: r.DataAmountMB,
		IsUnlimited:  r.IsUnlimited,
		ValidityDays: r.ValidityDays,
		Countries:    []string(r.Countries),
		Region:       r.Region,
		Groups:       []string(r.Groups),
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// GetBundleByID retrieves a bundle by id
func (s *Store) GetBundleByID(ctx context.Context, id string) (*models.Bundle, error) {
	var row bundleRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM bundles WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("bundle", id)
	}
	if err != nil {
		return nil, err
	}
	b := row.toModel()
	return &b, nil
}

// ListBundles retrieves all active bundles
func (s *Store) ListBundles(ctx context.Context) ([]models.Bundle, error) {
	var rows []bundleRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM bundles WHERE is_active ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	return rowsToBundles(rows), nil
}

// ListBundlesByDestination retrieves active bundles that can cover a
// destination: exact country, matching region, or global coverage.
func (s *Store) ListBundlesByDestination(ctx context.Context, destination string) ([]models.Bundle, error) {
	var rows []bundleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM bundles
		WHERE is_active
		  AND ($1 = ANY(countries) OR region = $1 OR (cardinality(countries) = 0 AND region = ''))
		ORDER BY created_at, id`, destination)
	if err != nil {
		return nil, err
	}
	return rowsToBundles(rows), nil
}

// ListStagedBundlesPage retrieves one page of the staging feed written
// by the catalog connectors. The sync runner folds it into bundles.
func (s *Store) ListStagedBundlesPage(ctx context.Context, syncType, scope string, limit, offset int) ([]models.Bundle, error) {
	var rows []bundleRow
	var err error
	switch syncType {
	case models.SyncTypeCountry:
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM catalog_staging WHERE $1 = ANY(countries)
			ORDER BY created_at, id LIMIT $2 OFFSET $3`, scope, limit, offset)
	case models.SyncTypeGroup:
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM catalog_staging WHERE $1 = ANY(groups)
			ORDER BY created_at, id LIMIT $2 OFFSET $3`, scope, limit, offset)
	default:
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM catalog_staging ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return rowsToBundles(rows), nil
}

// UpsertBundle writes a catalog bundle, reporting whether the row was
// newly inserted
func (s *Store) UpsertBundle(ctx context.Context, b *models.Bundle) (inserted bool, err error) {
	err = s.db.GetContext(ctx, &inserted, `
		INSERT INTO bundles (id, name, provider, base_cost, currency, data_amount_mb,
			is_unlimited, validity_days, countries, region, groups, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			provider = EXCLUDED.provider,
			base_cost = EXCLUDED.base_cost,
			currency = EXCLUDED.currency,
			data_amount_mb = EXCLUDED.data_amount_mb,
			is_unlimited = EXCLUDED.is_unlimited,
			validity_days = EXCLUDED.validity_days,
			countries = EXCLUDED.countries,
			region = EXCLUDED.region,
			groups = EXCLUDED.groups,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING (xmax = 0)`,
		b.ID, b.Name, b.Provider, b.BaseCost, b.Currency, b.DataAmountMB,
		b.IsUnlimited, b.ValidityDays, pq.StringArray(b.Countries), b.Region,
		pq.StringArray(b.Groups), b.IsActive)
	return inserted, err
}

func rowsToBundles(rows []bundleRow) []models.Bundle {
	out := make([]models.Bundle, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out
}
