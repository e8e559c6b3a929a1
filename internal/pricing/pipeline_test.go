package pricing

import (
	"context"
	"sync"
	"testing"
	"time"

	"pricing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records published events for assertions
type captureSink struct {
	mu     sync.Mutex
	steps  []models.StepEvent
	stages []models.StageEvent
}

func (s *captureSink) PublishStep(_ string, ev models.StepEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, ev)
}

func (s *captureSink) PublishStage(_ string, ev models.StageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, ev)
}

func pipelineFixture() ([]models.Bundle, models.PricingStrategy, map[string]models.PricingRule) {
	bundles := []models.Bundle{
		{ID: "fr-7", Countries: []string{"FR"}, ValidityDays: 7, BaseCost: 10, Currency: "USD", IsActive: true},
	}
	rules := map[string]models.PricingRule{
		"markup": {
			ID: "markup", Name: "Base markup", Category: models.CategoryBundleAdjustment,
			Priority: 100, IsActive: true,
			Actions: []models.Action{{Type: models.ActionAddMarkup, Value: 2}},
		},
		"discount": {
			ID: "discount", Name: "Promo discount", Category: models.CategoryDiscount,
			Priority: 50, IsActive: true,
			Actions: []models.Action{{Type: models.ActionDiscountPercentage, Value: 10}},
		},
	}
	strategy := models.PricingStrategy{
		ID: "strat-1", Version: 1,
		Blocks: []models.StrategyBlock{
			{ID: "b1", BlockID: "markup", Position: 0, IsEnabled: true},
			{ID: "b2", BlockID: "discount", Position: 1, IsEnabled: true},
		},
	}
	return bundles, strategy, rules
}

func TestPipelineRun(t *testing.T) {
	bundles, strategy, rules := pipelineFixture()
	p := NewPipeline(nil)

	b, err := p.Run(context.Background(), models.PricingContext{Destination: "FR", Days: 7}, bundles, strategy, rules)
	require.NoError(t, err)

	// 10 base, +2 markup, then 10% off 12.
	assert.InDelta(t, 10.8, b.FinalPrice, 1e-9)
	assert.Equal(t, 10.0, b.BaseCost)
	assert.Equal(t, 2.0, b.Markup)
	assert.InDelta(t, 1.2, b.DiscountValue, 1e-9)
	assert.Equal(t, "USD", b.Currency)
	assert.Equal(t, "fr-7", b.BundleID)
	assert.Equal(t, "exact duration match", b.SelectedReason)

	require.Len(t, b.Steps, 2)
	assert.Equal(t, 2.0, b.Steps[0].Impact)
	assert.InDelta(t, -1.2, b.Steps[1].Impact, 1e-9)
	assert.Equal(t, 0, b.Steps[0].Order)
	assert.Equal(t, 1, b.Steps[1].Order)

	require.Len(t, b.AppliedRules, 2)
	assert.Equal(t, "markup", b.AppliedRules[0].RuleID)
}

func TestPipelineReconciliation(t *testing.T) {
	bundles, strategy, rules := pipelineFixture()
	rules["floor"] = models.PricingRule{
		ID: "floor", Name: "Profit floor", Category: models.CategoryConstraint,
		Priority: 10, IsActive: true,
		Actions: []models.Action{{Type: models.ActionMinimumProfit, Value: 2}},
	}
	strategy.Blocks = append(strategy.Blocks, models.StrategyBlock{
		ID: "b3", BlockID: "floor", Position: 2, IsEnabled: true,
	})

	p := NewPipeline(nil)
	b, err := p.Run(context.Background(), models.PricingContext{Destination: "FR", Days: 7}, bundles, strategy, rules)
	require.NoError(t, err)

	// Every price movement is a recorded step: the step impacts must sum
	// to exactly final minus base.
	var sum float64
	for _, s := range b.Steps {
		sum += s.Impact
	}
	assert.InDelta(t, b.FinalPrice-b.BaseCost, sum, 1e-9)

	// The floor lifted 10.8 back to cost+2.
	assert.InDelta(t, 12.0, b.FinalPrice, 1e-9)
}

func TestPipelineSkipsNonFiringRules(t *testing.T) {
	bundles, strategy, rules := pipelineFixture()
	gated := rules["discount"]
	gated.Conditions = []models.Condition{
		{Field: "promoCode", Operator: models.OpEquals, Value: "SUMMER"},
	}
	rules["discount"] = gated

	p := NewPipeline(nil)
	b, err := p.Run(context.Background(), models.PricingContext{Destination: "FR", Days: 7}, bundles, strategy, rules)
	require.NoError(t, err)

	// Non-firing rules leave no trace.
	assert.InDelta(t, 12.0, b.FinalPrice, 1e-9)
	require.Len(t, b.Steps, 1)
	require.Len(t, b.AppliedRules, 1)
}

func TestPipelineContainsUnknownAction(t *testing.T) {
	bundles, strategy, rules := pipelineFixture()
	broken := rules["markup"]
	broken.Actions = []models.Action{
		{Type: models.ActionAddMarkup, Value: 2},
		{Type: "EXPLODE", Value: 1},
	}
	rules["markup"] = broken

	p := NewPipeline(nil)
	b, err := p.Run(context.Background(), models.PricingContext{Destination: "FR", Days: 7}, bundles, strategy, rules)
	require.NoError(t, err)

	// The whole rule is discarded, including its valid first action.
	assert.InDelta(t, 9.0, b.FinalPrice, 1e-9)
	require.Len(t, b.AppliedRules, 1)
	assert.Equal(t, "discount", b.AppliedRules[0].RuleID)
}

func TestPipelineNoBundleFound(t *testing.T) {
	_, strategy, rules := pipelineFixture()
	p := NewPipeline(nil)

	_, err := p.Run(context.Background(), models.PricingContext{Destination: "XX", Days: 7}, nil, strategy, rules)

	var nf *models.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestPipelineDeadline(t *testing.T) {
	bundles, strategy, rules := pipelineFixture()
	p := NewPipeline(nil)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := p.Run(ctx, models.PricingContext{Destination: "FR", Days: 7}, bundles, strategy, rules)

	var to *models.TimeoutError
	assert.ErrorAs(t, err, &to)
}

func TestPipelinePublishesProgress(t *testing.T) {
	bundles, strategy, rules := pipelineFixture()
	sink := &captureSink{}
	p := NewPipeline(sink)

	pctx := models.PricingContext{Destination: "FR", Days: 7, CorrelationID: "corr-1"}
	b, err := p.Run(context.Background(), pctx, bundles, strategy, rules)
	require.NoError(t, err)

	states := make([]string, 0, len(sink.stages))
	for _, ev := range sink.stages {
		states = append(states, ev.State)
	}
	assert.Equal(t, []string{
		models.StateInit,
		models.StateSelecting,
		models.StateResolving,
		models.StateEvaluating,
		models.StateEvaluating,
		models.StateFinalizing,
		models.StateDone,
	}, states)

	require.NotEmpty(t, sink.steps)
	terminal := sink.steps[len(sink.steps)-1]
	assert.True(t, terminal.IsComplete)
	require.NotNil(t, terminal.FinalBreakdown)
	assert.Equal(t, b.FinalPrice, terminal.FinalBreakdown.FinalPrice)
	assert.Equal(t, "corr-1", terminal.CorrelationID)
}

func TestPipelineDebugOutput(t *testing.T) {
	bundles, strategy, rules := pipelineFixture()
	p := NewPipeline(nil)

	b, err := p.Run(context.Background(), models.PricingContext{Destination: "FR", Days: 7, Debug: true}, bundles, strategy, rules)
	require.NoError(t, err)
	require.NotNil(t, b.Debug)
	assert.Equal(t, "strat-1", b.Debug["strategy_id"])

	b, err = p.Run(context.Background(), models.PricingContext{Destination: "FR", Days: 7}, bundles, strategy, rules)
	require.NoError(t, err)
	assert.Nil(t, b.Debug)
}

func TestPipelineProcessingRateFinalization(t *testing.T) {
	bundles, strategy, rules := pipelineFixture()
	rules["processing"] = models.PricingRule{
		ID: "processing", Name: "Card fee", Category: models.CategoryFee,
		Priority: 5, IsActive: true,
		Actions: []models.Action{{Type: models.ActionProcessingRate, Value: 0.03}},
	}
	strategy.Blocks = append(strategy.Blocks, models.StrategyBlock{
		ID: "b3", BlockID: "processing", Position: 2, IsEnabled: true,
	})

	p := NewPipeline(nil)
	b, err := p.Run(context.Background(), models.PricingContext{Destination: "FR", Days: 7}, bundles, strategy, rules)
	require.NoError(t, err)

	assert.Equal(t, 0.03, b.ProcessingRate)
	assert.InDelta(t, 10.8*0.03, b.ProcessingCost, 1e-9)
	assert.InDelta(t, 10.8-10.8*0.03, b.RevenueAfterFx, 1e-9)
	assert.InDelta(t, 10.8-10-10.8*0.03, b.NetProfit, 1e-9)
}
