package pricing

import (
	"context"
	"errors"
	"time"

	"pricing-service/internal/models"
	"pricing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgressSink receives step and stage events during a run. The pipeline
// stays synchronous; fan-out to live subscribers is the sink's concern.
type ProgressSink interface {
	PublishStep(correlationID string, ev models.StepEvent)
	PublishStage(correlationID string, ev models.StageEvent)
}

// Pipeline orchestrates one evaluation:
// Init -> Selecting -> Resolving -> Evaluating(i)... -> Finalizing -> Done.
// Any unrecoverable error transitions to Failed and surfaces a typed
// error instead of a partial success.
type Pipeline struct {
	sink   ProgressSink
	logger *zap.Logger
	clock  func() time.Time
}

// NewPipeline creates a pipeline publishing into sink. A nil sink is
// valid and disables progress events.
func NewPipeline(sink ProgressSink) *Pipeline {
	return &Pipeline{
		sink:   sink,
		logger: util.GetLogger(),
		clock:  time.Now,
	}
}

// Run evaluates one context against a strategy over the given catalog
// candidates and returns the breakdown with its full trace.
func (p *Pipeline) Run(
	ctx context.Context,
	pctx models.PricingContext,
	bundles []models.Bundle,
	strategy models.PricingStrategy,
	rules map[string]models.PricingRule,
) (*models.PricingBreakdown, error) {
	started := p.clock()

	correlationID := pctx.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	p.publishStage(correlationID, models.StateInit, nil, nil)

	p.publishStage(correlationID, models.StateSelecting, nil, nil)
	sel, err := SelectBundle(bundles, pctx)
	if err != nil {
		return nil, p.fail(correlationID, nil, err)
	}

	p.publishStage(correlationID, models.StateResolving, nil, map[string]interface{}{
		"strategy_id":      strategy.ID,
		"strategy_version": strategy.Version,
	})
	blocks := ResolveBlocks(strategy, rules, p.clock())

	doc := NewEvalDoc(pctx, sel)
	totals := Totals{
		Price:      sel.Bundle.BaseCost,
		Cost:       sel.Bundle.BaseCost,
		UnusedDays: sel.UnusedDays,
	}

	steps := make([]models.PricingStep, 0, len(blocks))
	applied := make([]models.AppliedRule, 0, len(blocks))

	for i, blk := range blocks {
		if err := runContextErr(ctx); err != nil {
			return nil, p.fail(correlationID, steps, err)
		}

		p.publishStage(correlationID, models.StateEvaluating, applied, map[string]interface{}{
			"block": blk.Rule.Name,
			"index": i,
			"of":    len(blocks),
		})

		if !AllConditionsMatch(blk.Rule.Conditions, doc) {
			continue
		}

		next, ruleSteps, err := p.applyRule(blk.Rule, totals)
		if err != nil {
			// A malformed rule is contained locally: skipped and logged,
			// never aborting the run.
			util.RulesSkippedTotal.WithLabelValues("unknown_action").Inc()
			p.logger.Warn("Skipping rule with unknown action",
				zap.String("rule_id", blk.Rule.ID),
				zap.String("rule", blk.Rule.Name),
				zap.Error(err))
			continue
		}
		totals = next

		var impact float64
		for _, s := range ruleSteps {
			s.Order = len(steps)
			s.Name = blk.Rule.Name
			s.RuleID = blk.Rule.ID
			s.Timestamp = p.clock()
			steps = append(steps, s)
			impact += s.Impact
			util.StepsAppliedTotal.Inc()

			p.publishStep(correlationID, models.StepEvent{
				CorrelationID:  correlationID,
				Step:           &steps[len(steps)-1],
				CompletedSteps: i + 1,
				TotalSteps:     len(blocks),
			})
		}

		applied = append(applied, models.AppliedRule{
			RuleID:   blk.Rule.ID,
			Name:     blk.Rule.Name,
			Category: blk.Rule.Category,
			Impact:   impact,
		})
	}

	p.publishStage(correlationID, models.StateFinalizing, applied, nil)
	breakdown := p.finalize(pctx, sel, totals, steps, applied, correlationID, strategy, started)

	p.publishStage(correlationID, models.StateDone, applied, nil)
	p.publishStep(correlationID, models.StepEvent{
		CorrelationID:  correlationID,
		IsComplete:     true,
		CompletedSteps: len(blocks),
		TotalSteps:     len(blocks),
		FinalBreakdown: breakdown,
	})

	return breakdown, nil
}

// applyRule applies every action of a fired rule. On an unknown action
// the rule's partial effect is discarded wholesale.
func (p *Pipeline) applyRule(rule models.PricingRule, totals Totals) (Totals, []models.PricingStep, error) {
	next := totals
	ruleSteps := make([]models.PricingStep, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		var step models.PricingStep
		var err error
		next, step, err = ApplyAction(action, next)
		if err != nil {
			return totals, nil, err
		}
		ruleSteps = append(ruleSteps, step)
	}
	return next, ruleSteps, nil
}

func (p *Pipeline) finalize(
	pctx models.PricingContext,
	sel Selection,
	totals Totals,
	steps []models.PricingStep,
	applied []models.AppliedRule,
	correlationID string,
	strategy models.PricingStrategy,
	started time.Time,
) *models.PricingBreakdown {
	processingCost := totals.Price * totals.ProcessingRate

	var discountRate float64
	if totals.Cost > 0 {
		discountRate = totals.DiscountValue / totals.Cost
	}

	b := &models.PricingBreakdown{
		BundleID:       sel.Bundle.ID,
		Currency:       sel.Bundle.Currency,
		BaseCost:       sel.Bundle.BaseCost,
		Markup:         totals.Markup,
		DiscountRate:   discountRate,
		DiscountValue:  totals.DiscountValue,
		ProcessingRate: totals.ProcessingRate,
		ProcessingCost: processingCost,
		FinalPrice:     totals.Price,
		NetProfit:      totals.Price - totals.Cost - processingCost,
		RevenueAfterFx: totals.Price - processingCost,
		Savings:        sel.Bundle.BaseCost - totals.Price,
		UnusedDays:     sel.UnusedDays,
		SelectedReason: sel.Reason,
		AppliedRules:   applied,
		Steps:          steps,
		CorrelationID:  correlationID,
		CalculatedAt:   p.clock(),
	}

	if pctx.Debug {
		b.Debug = map[string]interface{}{
			"duration_ms":      p.clock().Sub(started).Milliseconds(),
			"strategy_id":      strategy.ID,
			"strategy_version": strategy.Version,
			"blocks_bound":     len(strategy.Blocks),
			"rules_applied":    len(applied),
		}
	}

	return b
}

// fail publishes the error with the partial trace and returns the error
func (p *Pipeline) fail(correlationID string, partial []models.PricingStep, err error) error {
	p.publishStage(correlationID, models.StateFailed, nil, map[string]interface{}{
		"error": err.Error(),
	})
	p.publishStep(correlationID, models.StepEvent{
		CorrelationID:  correlationID,
		IsComplete:     true,
		CompletedSteps: len(partial),
		Error:          err.Error(),
	})

	var nf *models.NotFoundError
	var to *models.TimeoutError
	if errors.As(err, &nf) || errors.As(err, &to) {
		return err
	}
	return &models.ComputationError{Stage: models.StateEvaluating, PartialSteps: partial, Err: err}
}

func (p *Pipeline) publishStep(correlationID string, ev models.StepEvent) {
	if p.sink != nil {
		p.sink.PublishStep(correlationID, ev)
	}
}

func (p *Pipeline) publishStage(correlationID, state string, applied []models.AppliedRule, debug map[string]interface{}) {
	if p.sink == nil {
		return
	}
	p.sink.PublishStage(correlationID, models.StageEvent{
		Name:         state,
		Timestamp:    p.clock(),
		State:        state,
		AppliedRules: applied,
		Debug:        debug,
	})
}

func runContextErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &models.TimeoutError{Op: "pipeline evaluation"}
		}
		return ctx.Err()
	default:
		return nil
	}
}
