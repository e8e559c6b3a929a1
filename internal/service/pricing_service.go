package service

import (
	"context"
	"errors"
	"time"

	"pricing-service/config"
	"pricing-service/internal/cache"
	"pricing-service/internal/models"
	"pricing-service/internal/pricing"
	"pricing-service/internal/progress"
	"pricing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// PricingStore is the persistence surface the calculation path reads
type PricingStore interface {
	GetStrategyByID(ctx context.Context, id string) (*models.PricingStrategy, error)
	GetDefaultStrategy(ctx context.Context, tenantID string) (*models.PricingStrategy, error)
	ListBundles(ctx context.Context) ([]models.Bundle, error)
	ListBundlesByDestination(ctx context.Context, destination string) ([]models.Bundle, error)
	GetBundleByID(ctx context.Context, id string) (*models.Bundle, error)
	GetRulesByIDs(ctx context.Context, ids []string) (map[string]models.PricingRule, error)
	InsertBreakdown(ctx context.Context, id, fingerprint, destination string, b *models.PricingBreakdown) error
	ListBreakdownsByDestination(ctx context.Context, destination string, limit int) ([]models.PricingBreakdown, error)
}

// BreakdownCache memoizes breakdowns keyed by context fingerprint
type BreakdownCache interface {
	Get(ctx context.Context, country, fingerprint string) (*models.PricingBreakdown, bool, error)
	Set(ctx context.Context, country, fingerprint string, b *models.PricingBreakdown, strategyVersion int) error
}

// PricingService runs the evaluation pipeline behind the cache
type PricingService struct {
	store     PricingStore
	cache     BreakdownCache
	publisher *progress.Publisher
	pipeline  *pricing.Pipeline
	cfg       config.PricingConfig
	flight    singleflight.Group
	logger    *zap.Logger
}

// NewPricingService creates a new pricing service
func NewPricingService(
	store PricingStore,
	cache BreakdownCache,
	publisher *progress.Publisher,
	cfg config.PricingConfig,
) *PricingService {
	return &PricingService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		pipeline:  pricing.NewPipeline(publisher),
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// CalculatePrice evaluates one context. Reads through the cache;
// concurrent identical requests on a cold cache coalesce onto a single
// pipeline execution.
func (s *PricingService) CalculatePrice(ctx context.Context, pctx models.PricingContext) (*models.PricingBreakdown, error) {
	ctx, span := util.StartSpan(ctx, "PricingService.CalculatePrice")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CalculationDuration.Observe(time.Since(start).Seconds())
	}()

	if err := validateContext(pctx); err != nil {
		util.CalculationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	strategy, err := s.loadStrategy(ctx, pctx)
	if err != nil {
		util.CalculationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	fingerprint := cache.Fingerprint(pctx, strategy.ID, strategy.Version)

	cached, hit, err := s.cache.Get(ctx, pctx.Destination, fingerprint)
	if err != nil {
		// Cache trouble never blocks the calculation path.
		s.logger.Warn("Cache read failed, computing", zap.Error(err))
	}
	if hit {
		util.CalculationsTotal.WithLabelValues("cache_hit").Inc()
		// A cache hit skips the pipeline entirely; streaming subscribers
		// still get their terminal event.
		if pctx.CorrelationID != "" {
			cached.CorrelationID = pctx.CorrelationID
			s.publisher.PublishStep(pctx.CorrelationID, models.StepEvent{
				CorrelationID:  pctx.CorrelationID,
				IsComplete:     true,
				FinalBreakdown: cached,
			})
		}
		return cached, nil
	}

	result, err, _ := s.flight.Do(fingerprint, func() (interface{}, error) {
		return s.compute(ctx, pctx, strategy, fingerprint)
	})
	if err != nil {
		util.CalculationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	util.CalculationsTotal.WithLabelValues("computed").Inc()
	breakdown := result.(*models.PricingBreakdown)
	if pctx.CorrelationID != "" && breakdown.CorrelationID != pctx.CorrelationID {
		// This caller coalesced onto a run that streamed under another
		// correlation id; its own subscribers still get a terminal event.
		shared := *breakdown
		shared.CorrelationID = pctx.CorrelationID
		s.publisher.PublishStep(pctx.CorrelationID, models.StepEvent{
			CorrelationID:  pctx.CorrelationID,
			IsComplete:     true,
			FinalBreakdown: &shared,
		})
		return &shared, nil
	}
	return breakdown, nil
}

// compute runs the pipeline and writes the cache and audit record
func (s *PricingService) compute(ctx context.Context, pctx models.PricingContext, strategy *models.PricingStrategy, fingerprint string) (*models.PricingBreakdown, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.PipelineTimeout)
	defer cancel()

	bundles, err := s.store.ListBundlesByDestination(runCtx, pctx.Destination)
	if err != nil {
		return nil, wrapLookupErr(err, "bundle catalog lookup")
	}

	rules, err := s.loadRules(runCtx, strategy)
	if err != nil {
		return nil, wrapLookupErr(err, "rule lookup")
	}

	breakdown, err := s.pipeline.Run(runCtx, pctx, bundles, *strategy, rules)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, pctx.Destination, fingerprint, breakdown, strategy.Version); err != nil {
		// Degrades to "computed but not cached".
		s.logger.Warn("Cache write failed", zap.Error(err))
	}

	go s.persistBreakdown(fingerprint, pctx.Destination, breakdown)

	return breakdown, nil
}

// persistBreakdown writes the audit record off the request path
func (s *PricingService) persistBreakdown(fingerprint, destination string, b *models.PricingBreakdown) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.InsertBreakdown(ctx, uuid.New().String(), fingerprint, destination, b); err != nil {
		s.logger.Error("Failed to persist breakdown record",
			zap.String("fingerprint", fingerprint),
			zap.Error(err))
	}
}

// CalculatePrices evaluates a batch concurrently. Result order matches
// input order regardless of completion order.
func (s *PricingService) CalculatePrices(ctx context.Context, contexts []models.PricingContext) ([]*models.PricingBreakdown, error) {
	ctx, span := util.StartSpan(ctx, "PricingService.CalculatePrices")
	defer span.End()

	util.BatchSizeObserved.Observe(float64(len(contexts)))

	results := make([]*models.PricingBreakdown, len(contexts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)

	for i := range contexts {
		i := i
		g.Go(func() error {
			b, err := s.CalculatePrice(gctx, contexts[i])
			if err != nil {
				return err
			}
			results[i] = b
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SimulateRule runs the pipeline with one ad hoc rule inserted, without
// persisting it or touching the cache
func (s *PricingService) SimulateRule(ctx context.Context, candidate models.PricingRule, pctx models.PricingContext) (*models.PricingBreakdown, error) {
	ctx, span := util.StartSpan(ctx, "PricingService.SimulateRule")
	defer span.End()

	util.SimulationsTotal.Inc()

	if err := validateContext(pctx); err != nil {
		return nil, err
	}
	if err := ValidateRule(&candidate); err != nil {
		return nil, err
	}

	strategy, err := s.loadStrategy(ctx, pctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.PipelineTimeout)
	defer cancel()

	bundles, err := s.store.ListBundlesByDestination(runCtx, pctx.Destination)
	if err != nil {
		return nil, wrapLookupErr(err, "bundle catalog lookup")
	}
	rules, err := s.loadRules(runCtx, strategy)
	if err != nil {
		return nil, wrapLookupErr(err, "rule lookup")
	}

	// Splice the candidate in as an enabled binding on a copy of the
	// strategy; nothing is written anywhere.
	if candidate.ID == "" {
		candidate.ID = "simulated-" + uuid.New().String()
	}
	candidate.IsActive = true
	rules[candidate.ID] = candidate

	sim := *strategy
	sim.Blocks = append(append([]models.StrategyBlock{}, strategy.Blocks...), models.StrategyBlock{
		ID:        "simulated-binding",
		BlockID:   candidate.ID,
		Position:  len(strategy.Blocks),
		IsEnabled: true,
	})

	return s.pipeline.Run(runCtx, pctx, bundles, sim, rules)
}

// ListBreakdownHistory retrieves recent persisted breakdowns for a
// destination, newest first
func (s *PricingService) ListBreakdownHistory(ctx context.Context, destination string, limit int) ([]models.PricingBreakdown, error) {
	if destination == "" {
		return nil, models.NewValidationError("destination", "must not be empty")
	}
	return s.store.ListBreakdownsByDestination(ctx, destination, limit)
}

// GetBundle retrieves one catalog bundle
func (s *PricingService) GetBundle(ctx context.Context, id string) (*models.Bundle, error) {
	return s.store.GetBundleByID(ctx, id)
}

// ListBundles retrieves the active catalog, optionally narrowed to the
// bundles that can cover a destination
func (s *PricingService) ListBundles(ctx context.Context, destination string) ([]models.Bundle, error) {
	if destination != "" {
		return s.store.ListBundlesByDestination(ctx, destination)
	}
	return s.store.ListBundles(ctx)
}

// loadStrategy resolves the explicit strategy id or the tenant default
func (s *PricingService) loadStrategy(ctx context.Context, pctx models.PricingContext) (*models.PricingStrategy, error) {
	if pctx.StrategyID != "" {
		strategy, err := s.store.GetStrategyByID(ctx, pctx.StrategyID)
		if err != nil {
			return nil, err
		}
		if strategy.IsArchived {
			return nil, models.NewNotFoundError("pricing strategy", pctx.StrategyID)
		}
		return strategy, nil
	}
	return s.store.GetDefaultStrategy(ctx, pctx.TenantID)
}

func (s *PricingService) loadRules(ctx context.Context, strategy *models.PricingStrategy) (map[string]models.PricingRule, error) {
	ids := make([]string, 0, len(strategy.Blocks))
	for _, b := range strategy.Blocks {
		ids = append(ids, b.BlockID)
	}
	return s.store.GetRulesByIDs(ctx, ids)
}

func validateContext(pctx models.PricingContext) error {
	if pctx.Destination == "" {
		return models.NewValidationError("destination", "must not be empty")
	}
	if pctx.Days < 1 {
		return models.NewValidationError("days", "must be at least 1")
	}
	if pctx.PriorBundle != nil {
		if pctx.PriorBundle.ValidityDays < 1 {
			return models.NewValidationError("prior_bundle.validity_days", "must be at least 1")
		}
		if pctx.PriorBundle.DaysConsumed < 0 {
			return models.NewValidationError("prior_bundle.days_consumed", "must not be negative")
		}
	}
	return nil
}

// wrapLookupErr maps a deadline hit during storage access to the typed
// timeout failure; other errors pass through
func wrapLookupErr(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.TimeoutError{Op: op}
	}
	return err
}
