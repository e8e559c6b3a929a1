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

type ruleRow struct {
	ID         string     `db:"id"`
	Name       string     `db:"name"`
	Category   string     `db:"category"`
	Conditions []byte     `db:"conditions"`
	Actions    []byte     `db:"actions"`
	Priority   int        `db:"priority"`
	IsActive   bool       `db:"is_active"`
	IsEditable bool       `db:"is_editable"`
	ValidFrom  *time.Time `db:"valid_from"`
	ValidUntil *time.Time `db:"valid_until"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

func (r *ruleRow) toModel() (models.PricingRule, error) {
	rule := models.PricingRule{
		ID:         r.ID,
		Name:       r.Name,
		Category:   r.Category,
		Priority:   r.Priority,
		IsActive:   r.IsActive,
		IsEditable: r.IsEditable,
		ValidFrom:  r.ValidFrom,
		ValidUntil: r.ValidUntil,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Conditions, &rule.Conditions); err != nil {
		return rule, fmt.Errorf("rule %s conditions corrupt: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.Actions, &rule.Actions); err != nil {
		return rule, fmt.Errorf("rule %s actions corrupt: %w", r.ID, err)
	}
	return rule, nil
}

// CreateRule inserts a pricing rule
func (s *Store) CreateRule(ctx context.Context, rule *models.PricingRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		INSERT INTO pricing_rules (id, name, category, conditions, actions, priority,
			is_active, is_editable, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	row := struct {
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}{}
	err = s.db.GetContext(ctx, &row, query,
		rule.ID, rule.Name, rule.Category, conditions, actions, rule.Priority,
		rule.IsActive, rule.IsEditable, rule.ValidFrom, rule.ValidUntil)
	if err != nil {
		return err
	}
	rule.CreatedAt = row.CreatedAt
	rule.UpdatedAt = row.UpdatedAt
	return nil
}

// GetRuleByID retrieves a rule by id
func (s *Store) GetRuleByID(ctx context.Context, id string) (*models.PricingRule, error) {
	var row ruleRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM pricing_rules WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("pricing rule", id)
	}
	if err != nil {
		return nil, err
	}
	rule, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// GetRulesByIDs retrieves multiple rules keyed by id
func (s *Store) GetRulesByIDs(ctx context.Context, ids []string) (map[string]models.PricingRule, error) {
	out := make(map[string]models.PricingRule, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In("SELECT * FROM pricing_rules WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var rows []ruleRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	for i := range rows {
		rule, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out[rule.ID] = rule
	}
	return out, nil
}

// ListRules retrieves all rules ordered by priority
func (s *Store) ListRules(ctx context.Context) ([]models.PricingRule, error) {
	var rows []ruleRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM pricing_rules ORDER BY priority DESC, created_at")
	if err != nil {
		return nil, err
	}
	out := make([]models.PricingRule, 0, len(rows))
	for i := range rows {
		rule, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// UpdateRule rewrites a rule's mutable fields
func (s *Store) UpdateRule(ctx context.Context, rule *models.PricingRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pricing_rules
		SET name = $1, category = $2, conditions = $3, actions = $4, priority = $5,
			is_active = $6, valid_from = $7, valid_until = $8, updated_at = NOW()
		WHERE id = $9`,
		rule.Name, rule.Category, conditions, actions, rule.Priority,
		rule.IsActive, rule.ValidFrom, rule.ValidUntil, rule.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewNotFoundError("pricing rule", rule.ID)
	}
	return nil
}

// SetRuleActive toggles a rule on or off
func (s *Store) SetRuleActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE pricing_rules SET is_active = $1, updated_at = NOW() WHERE id = $2",
		active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewNotFoundError("pricing rule", id)
	}
	return nil
}

// DeleteRule removes a rule and its strategy bindings
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM strategy_blocks WHERE block_id = $1", id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM pricing_rules WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NewNotFoundError("pricing rule", id)
	}

	return tx.Commit()
}
