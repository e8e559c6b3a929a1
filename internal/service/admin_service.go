package service

import (
	"context"
	"fmt"
	"time"

	"pricing-service/internal/broker"
	"pricing-service/internal/cache"
	"pricing-service/internal/models"
	"pricing-service/internal/pricing"
	"pricing-service/internal/store"
	"pricing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminService manages pricing rules and strategies. Every mutation
// bumps the owning strategy versions, invalidates the affected cache
// scope and announces the change on the broker.
type AdminService struct {
	store          *store.Store
	cache          *cache.Cache
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(store *store.Store, cache *cache.Cache, eventPublisher *broker.EventPublisher) *AdminService {
	return &AdminService{
		store:          store,
		cache:          cache,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// ValidateRule checks a rule's structure before it is accepted.
// Validation failures are never partially applied.
func ValidateRule(rule *models.PricingRule) error {
	if rule.Name == "" {
		return models.NewValidationError("name", "must not be empty")
	}
	switch rule.Category {
	case models.CategoryBundleAdjustment, models.CategoryDiscount,
		models.CategoryFee, models.CategoryConstraint, models.CategoryProviderSelection:
	default:
		return models.NewValidationError("category", fmt.Sprintf("unknown category %q", rule.Category))
	}
	for i, c := range rule.Conditions {
		switch c.Operator {
		case models.OpEquals, models.OpNotEquals, models.OpGreaterThan,
			models.OpLessThan, models.OpBetween, models.OpIn, models.OpNotIn,
			models.OpExists, models.OpNotExists:
		default:
			return models.NewValidationError(
				fmt.Sprintf("conditions[%d].operator", i),
				fmt.Sprintf("unknown operator %q", c.Operator))
		}
		if c.Field == "" {
			return models.NewValidationError(fmt.Sprintf("conditions[%d].field", i), "must not be empty")
		}
	}
	if len(rule.Actions) == 0 {
		return models.NewValidationError("actions", "must not be empty")
	}
	for i, a := range rule.Actions {
		if models.ParseActionType(string(a.Type)) == models.ActionUnknown {
			return models.NewValidationError(
				fmt.Sprintf("actions[%d].type", i),
				fmt.Sprintf("unknown action type %q", a.Type))
		}
	}
	return nil
}

// CreateRule inserts a new rule
func (s *AdminService) CreateRule(ctx context.Context, rule *models.PricingRule) (*models.PricingRule, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	s.logger.Info("Rule created", zap.String("rule_id", rule.ID), zap.String("name", rule.Name))
	s.invalidateForRule(ctx, rule)
	return rule, nil
}

// UpdateRule rewrites a rule after the editability check
func (s *AdminService) UpdateRule(ctx context.Context, rule *models.PricingRule) (*models.PricingRule, error) {
	existing, err := s.store.GetRuleByID(ctx, rule.ID)
	if err != nil {
		return nil, err
	}
	if !existing.IsEditable {
		return nil, &models.ConflictError{Reason: "rule is not editable"}
	}
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	s.logger.Info("Rule updated", zap.String("rule_id", rule.ID))
	// The old and the new shape can each pin a different scope.
	s.invalidateForRule(ctx, existing)
	s.invalidateForRule(ctx, rule)
	return s.store.GetRuleByID(ctx, rule.ID)
}

// DeleteRule removes a rule and its bindings
func (s *AdminService) DeleteRule(ctx context.Context, id string) error {
	existing, err := s.store.GetRuleByID(ctx, id)
	if err != nil {
		return err
	}
	if !existing.IsEditable {
		return &models.ConflictError{Reason: "rule is not editable"}
	}
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Rule deleted", zap.String("rule_id", id))
	s.invalidateForRule(ctx, existing)
	return nil
}

// ToggleRule flips a rule's active flag
func (s *AdminService) ToggleRule(ctx context.Context, id string, active bool) (*models.PricingRule, error) {
	existing, err := s.store.GetRuleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !existing.IsEditable {
		return nil, &models.ConflictError{Reason: "rule is not editable"}
	}
	if err := s.store.SetRuleActive(ctx, id, active); err != nil {
		return nil, err
	}
	s.invalidateForRule(ctx, existing)
	return s.store.GetRuleByID(ctx, id)
}

// CloneRule copies a rule under a new id; clones are always editable
func (s *AdminService) CloneRule(ctx context.Context, id string) (*models.PricingRule, error) {
	src, err := s.store.GetRuleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	clone := *src
	clone.ID = uuid.New().String()
	clone.Name = src.Name + " (copy)"
	clone.IsEditable = true
	if err := s.store.CreateRule(ctx, &clone); err != nil {
		return nil, fmt.Errorf("failed to clone rule: %w", err)
	}
	s.logger.Info("Rule cloned",
		zap.String("source_id", id),
		zap.String("rule_id", clone.ID))
	return &clone, nil
}

// GetRule retrieves one rule
func (s *AdminService) GetRule(ctx context.Context, id string) (*models.PricingRule, error) {
	return s.store.GetRuleByID(ctx, id)
}

// ListRules retrieves all rules
func (s *AdminService) ListRules(ctx context.Context) ([]models.PricingRule, error) {
	return s.store.ListRules(ctx)
}

// CreateStrategy inserts a strategy with its block bindings
func (s *AdminService) CreateStrategy(ctx context.Context, strategy *models.PricingStrategy) (*models.PricingStrategy, error) {
	if strategy.Name == "" {
		return nil, models.NewValidationError("name", "must not be empty")
	}
	if strategy.ID == "" {
		strategy.ID = uuid.New().String()
	}
	if strategy.Version == 0 {
		strategy.Version = 1
	}
	for i := range strategy.Blocks {
		if strategy.Blocks[i].ID == "" {
			strategy.Blocks[i].ID = uuid.New().String()
		}
		strategy.Blocks[i].StrategyID = strategy.ID
	}
	if err := s.store.CreateStrategy(ctx, strategy); err != nil {
		return nil, fmt.Errorf("failed to create strategy: %w", err)
	}
	if strategy.IsDefault {
		if err := s.store.SetDefaultStrategy(ctx, strategy.TenantID, strategy.ID); err != nil {
			return nil, err
		}
	}
	s.logger.Info("Strategy created", zap.String("strategy_id", strategy.ID))
	return s.store.GetStrategyByID(ctx, strategy.ID)
}

// GetStrategy retrieves a strategy with blocks
func (s *AdminService) GetStrategy(ctx context.Context, id string) (*models.PricingStrategy, error) {
	return s.store.GetStrategyByID(ctx, id)
}

// ListStrategies retrieves a tenant's strategies
func (s *AdminService) ListStrategies(ctx context.Context, tenantID string) ([]models.PricingStrategy, error) {
	return s.store.ListStrategies(ctx, tenantID)
}

// ReorderStrategyBlocks rewrites the binding list and bumps the version
func (s *AdminService) ReorderStrategyBlocks(ctx context.Context, strategyID string, blocks []models.StrategyBlock) (*models.PricingStrategy, error) {
	if _, err := s.store.GetStrategyByID(ctx, strategyID); err != nil {
		return nil, err
	}
	for i := range blocks {
		if blocks[i].ID == "" {
			blocks[i].ID = uuid.New().String()
		}
		blocks[i].StrategyID = strategyID
		blocks[i].Position = i
	}
	if err := s.store.ReplaceStrategyBlocks(ctx, strategyID, blocks); err != nil {
		return nil, err
	}
	return s.afterStrategyMutation(ctx, strategyID)
}

// UpdateStrategyBlock rewrites one binding and bumps the version
func (s *AdminService) UpdateStrategyBlock(ctx context.Context, strategyID string, block *models.StrategyBlock) (*models.PricingStrategy, error) {
	block.StrategyID = strategyID
	if err := s.store.UpdateStrategyBlock(ctx, block); err != nil {
		return nil, err
	}
	return s.afterStrategyMutation(ctx, strategyID)
}

// SetDefaultStrategy promotes a strategy to tenant default
func (s *AdminService) SetDefaultStrategy(ctx context.Context, tenantID, strategyID string) error {
	if err := s.store.SetDefaultStrategy(ctx, tenantID, strategyID); err != nil {
		return err
	}
	_, err := s.afterStrategyMutation(ctx, strategyID)
	return err
}

// ArchiveStrategy soft-deletes a strategy
func (s *AdminService) ArchiveStrategy(ctx context.Context, id string) error {
	if err := s.store.ArchiveStrategy(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, models.ScopeGlobal, "", "", id)
	return nil
}

// FindConflicts reports rule pairs of a strategy whose relative order
// is accidental
func (s *AdminService) FindConflicts(ctx context.Context, strategyID string) ([]pricing.RuleConflict, error) {
	strategy, err := s.store.GetStrategyByID(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(strategy.Blocks))
	for _, b := range strategy.Blocks {
		ids = append(ids, b.BlockID)
	}
	rules, err := s.store.GetRulesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return pricing.FindConflictingRules(*strategy, rules, time.Now()), nil
}

func (s *AdminService) afterStrategyMutation(ctx context.Context, strategyID string) (*models.PricingStrategy, error) {
	if _, err := s.store.BumpStrategyVersion(ctx, strategyID); err != nil {
		return nil, err
	}
	s.invalidate(ctx, models.ScopeGlobal, "", "", strategyID)
	return s.store.GetStrategyByID(ctx, strategyID)
}

// invalidateForRule derives the narrowest cache scope a rule can touch
func (s *AdminService) invalidateForRule(ctx context.Context, rule *models.PricingRule) {
	kind, key := models.ScopeGlobal, ""
	for _, c := range rule.Conditions {
		if c.Operator != models.OpEquals {
			continue
		}
		if c.Field == "destination" {
			if v, ok := c.Value.(string); ok {
				kind, key = models.ScopeCountry, v
			}
			break
		}
		if c.Field == "bundle.id" {
			if v, ok := c.Value.(string); ok {
				kind, key = models.ScopeBundle, v
			}
			break
		}
	}
	s.invalidate(ctx, kind, key, rule.ID, "")
}

// invalidate clears the local cache scope and announces the change so
// peer instances do the same. Failures degrade, never fail the mutation.
func (s *AdminService) invalidate(ctx context.Context, kind, key, ruleID, strategyID string) {
	var err error
	switch kind {
	case models.ScopeBundle:
		_, err = s.cache.InvalidateByBundle(ctx, key)
	case models.ScopeCountry:
		_, err = s.cache.InvalidateByCountry(ctx, key)
	default:
		_, err = s.cache.InvalidateAll(ctx)
	}
	if err != nil {
		s.logger.Error("Cache invalidation failed",
			zap.String("scope", kind),
			zap.String("key", key),
			zap.Error(err))
	}

	event := &models.RulesChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRulesChanged,
			Timestamp: time.Now(),
		},
		RuleID:     ruleID,
		StrategyID: strategyID,
		ScopeKind:  kind,
		ScopeKey:   key,
	}
	if err := s.eventPublisher.PublishRulesChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish RulesChanged event", zap.Error(err))
	}
}
