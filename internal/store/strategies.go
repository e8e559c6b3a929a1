package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pricing-service/internal/models"

	"github.com/jmoiron/sqlx"
)

type strategyRow struct {
	ID         string    `db:"id"`
	TenantID   string    `db:"tenant_id"`
	Name       string    `db:"name"`
	Version    int       `db:"version"`
	IsDefault  bool      `db:"is_default"`
	IsArchived bool      `db:"is_archived"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type strategyBlockRow struct {
	ID               string `db:"id"`
	StrategyID       string `db:"strategy_id"`
	BlockID          string `db:"block_id"`
	Position         int    `db:"position"`
	PriorityOverride *int   `db:"priority_override"`
	IsEnabled        bool   `db:"is_enabled"`
	ConfigOverride   []byte `db:"config_override"`
}

func (r *strategyRow) toModel() models.PricingStrategy {
	return models.PricingStrategy{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Name:       r.Name,
		Version:    r.Version,
		IsDefault:  r.IsDefault,
		IsArchived: r.IsArchived,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (r *strategyBlockRow) toModel() (models.StrategyBlock, error) {
	b := models.StrategyBlock{
		ID:               r.ID,
		StrategyID:       r.StrategyID,
		BlockID:          r.BlockID,
		Position:         r.Position,
		PriorityOverride: r.PriorityOverride,
		IsEnabled:        r.IsEnabled,
	}
	if len(r.ConfigOverride) > 0 {
		if err := json.Unmarshal(r.ConfigOverride, &b.ConfigOverride); err != nil {
			return b, fmt.Errorf("strategy block %s config corrupt: %w", r.ID, err)
		}
	}
	return b, nil
}

// CreateStrategy inserts a strategy and its block bindings
func (s *Store) CreateStrategy(ctx context.Context, strategy *models.PricingStrategy) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := struct {
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}{}
	err = tx.GetContext(ctx, &row, `
		INSERT INTO pricing_strategies (id, tenant_id, name, version, is_default, is_archived)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		strategy.ID, strategy.TenantID, strategy.Name, strategy.Version,
		strategy.IsDefault, strategy.IsArchived)
	if err != nil {
		return err
	}
	strategy.CreatedAt = row.CreatedAt
	strategy.UpdatedAt = row.UpdatedAt

	if err := insertBlocksTx(ctx, tx, strategy.ID, strategy.Blocks); err != nil {
		return err
	}

	return tx.Commit()
}

func insertBlocksTx(ctx context.Context, tx *sqlx.Tx, strategyID string, blocks []models.StrategyBlock) error {
	for _, b := range blocks {
		var override []byte
		if len(b.ConfigOverride) > 0 {
			var err error
			override, err = json.Marshal(b.ConfigOverride)
			if err != nil {
				return fmt.Errorf("failed to marshal config override: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO strategy_blocks (id, strategy_id, block_id, position,
				priority_override, is_enabled, config_override)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			b.ID, strategyID, b.BlockID, b.Position,
			b.PriorityOverride, b.IsEnabled, override)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetStrategyByID retrieves a strategy with its ordered blocks
func (s *Store) GetStrategyByID(ctx context.Context, id string) (*models.PricingStrategy, error) {
	var row strategyRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM pricing_strategies WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("pricing strategy", id)
	}
	if err != nil {
		return nil, err
	}
	return s.loadStrategyBlocks(ctx, row)
}

// GetDefaultStrategy retrieves the tenant's default strategy.
// Archived strategies are never selectable.
func (s *Store) GetDefaultStrategy(ctx context.Context, tenantID string) (*models.PricingStrategy, error) {
	var row strategyRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM pricing_strategies
		WHERE tenant_id = $1 AND is_default AND NOT is_archived`, tenantID)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("default strategy for tenant", tenantID)
	}
	if err != nil {
		return nil, err
	}
	return s.loadStrategyBlocks(ctx, row)
}

func (s *Store) loadStrategyBlocks(ctx context.Context, row strategyRow) (*models.PricingStrategy, error) {
	strategy := row.toModel()

	var blockRows []strategyBlockRow
	err := s.db.SelectContext(ctx, &blockRows,
		"SELECT * FROM strategy_blocks WHERE strategy_id = $1 ORDER BY position", row.ID)
	if err != nil {
		return nil, err
	}

	strategy.Blocks = make([]models.StrategyBlock, 0, len(blockRows))
	for i := range blockRows {
		b, err := blockRows[i].toModel()
		if err != nil {
			return nil, err
		}
		strategy.Blocks = append(strategy.Blocks, b)
	}
	return &strategy, nil
}

// ListStrategies retrieves all non-archived strategies for a tenant
func (s *Store) ListStrategies(ctx context.Context, tenantID string) ([]models.PricingStrategy, error) {
	var rows []strategyRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM pricing_strategies
		WHERE tenant_id = $1 AND NOT is_archived
		ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]models.PricingStrategy, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// BumpStrategyVersion increments the version after any mutation that
// changes evaluation results, returning the new version
func (s *Store) BumpStrategyVersion(ctx context.Context, id string) (int, error) {
	var version int
	err := s.db.GetContext(ctx, &version, `
		UPDATE pricing_strategies SET version = version + 1, updated_at = NOW()
		WHERE id = $1 RETURNING version`, id)
	if err == sql.ErrNoRows {
		return 0, models.NewNotFoundError("pricing strategy", id)
	}
	return version, err
}

// SetDefaultStrategy marks one strategy default and unmarks every other
// strategy of the tenant in the same transaction
func (s *Store) SetDefaultStrategy(ctx context.Context, tenantID, strategyID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE pricing_strategies SET is_default = FALSE, updated_at = NOW() WHERE tenant_id = $1 AND is_default",
		tenantID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE pricing_strategies SET is_default = TRUE, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND NOT is_archived`,
		strategyID, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewNotFoundError("pricing strategy", strategyID)
	}

	return tx.Commit()
}

// ArchiveStrategy soft-deletes a strategy; it stays readable for audit
func (s *Store) ArchiveStrategy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pricing_strategies
		SET is_archived = TRUE, is_default = FALSE, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewNotFoundError("pricing strategy", id)
	}
	return nil
}

// ReplaceStrategyBlocks rewrites the block bindings (reorder, rebind)
func (s *Store) ReplaceStrategyBlocks(ctx context.Context, strategyID string, blocks []models.StrategyBlock) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM strategy_blocks WHERE strategy_id = $1", strategyID); err != nil {
		return err
	}
	if err := insertBlocksTx(ctx, tx, strategyID, blocks); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateStrategyBlock rewrites one binding (enable/disable, overrides)
func (s *Store) UpdateStrategyBlock(ctx context.Context, block *models.StrategyBlock) error {
	var override []byte
	if len(block.ConfigOverride) > 0 {
		var err error
		override, err = json.Marshal(block.ConfigOverride)
		if err != nil {
			return fmt.Errorf("failed to marshal config override: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE strategy_blocks
		SET position = $1, priority_override = $2, is_enabled = $3, config_override = $4
		WHERE id = $5`,
		block.Position, block.PriorityOverride, block.IsEnabled, override, block.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewNotFoundError("strategy block", block.ID)
	}
	return nil
}
