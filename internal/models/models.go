package models

import "time"

// Condition operators
const (
	OpEquals      = "EQUALS"
	OpNotEquals   = "NOT_EQUALS"
	OpGreaterThan = "GREATER_THAN"
	OpLessThan    = "LESS_THAN"
	OpBetween     = "BETWEEN"
	OpIn          = "IN"
	OpNotIn       = "NOT_IN"
	OpExists      = "EXISTS"
	OpNotExists   = "NOT_EXISTS"
)

// ActionType identifies a pricing action variant
type ActionType string

const (
	ActionAddMarkup            ActionType = "ADD_MARKUP"
	ActionDiscountPercentage   ActionType = "APPLY_DISCOUNT_PERCENTAGE"
	ActionFixedDiscount        ActionType = "APPLY_FIXED_DISCOUNT"
	ActionDiscountPerUnusedDay ActionType = "SET_DISCOUNT_PER_UNUSED_DAY"
	ActionMinimumPrice         ActionType = "SET_MINIMUM_PRICE"
	ActionMinimumProfit        ActionType = "SET_MINIMUM_PROFIT"
	ActionProcessingRate       ActionType = "SET_PROCESSING_RATE"
	ActionUnknown              ActionType = "UNKNOWN"
)

// ParseActionType maps a stored action kind to its typed variant.
// Unrecognized kinds become ActionUnknown instead of failing silently.
func ParseActionType(s string) ActionType {
	switch ActionType(s) {
	case ActionAddMarkup, ActionDiscountPercentage, ActionFixedDiscount,
		ActionDiscountPerUnusedDay, ActionMinimumPrice, ActionMinimumProfit,
		ActionProcessingRate:
		return ActionType(s)
	}
	return ActionUnknown
}

// Rule categories
const (
	CategoryBundleAdjustment  = "BUNDLE_ADJUSTMENT"
	CategoryDiscount          = "DISCOUNT"
	CategoryFee               = "FEE"
	CategoryConstraint        = "CONSTRAINT"
	CategoryProviderSelection = "PROVIDER_SELECTION"
)

// Condition is one predicate of a pricing rule. All conditions of a rule
// must hold for the rule to fire; an empty condition list always fires.
type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

// Action is one priced adjustment of a pricing rule
type Action struct {
	Type     ActionType             `json:"type"`
	Value    float64                `json:"value"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PricingRule is a named, conditionally-triggered adjustment unit
type PricingRule struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Category   string      `json:"category"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	Priority   int         `json:"priority"`
	IsActive   bool        `json:"is_active"`
	IsEditable bool        `json:"is_editable"`
	ValidFrom  *time.Time  `json:"valid_from,omitempty"`
	ValidUntil *time.Time  `json:"valid_until,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ValidNow reports whether the rule's validity window covers t.
// A rule without a window is always valid.
func (r *PricingRule) ValidNow(t time.Time) bool {
	if r.ValidFrom != nil && t.Before(*r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && t.After(*r.ValidUntil) {
		return false
	}
	return true
}

// StrategyBlock binds a pricing rule into a strategy with per-strategy
// overrides. ConfigOverride remaps action values keyed by action type.
type StrategyBlock struct {
	ID               string             `json:"id"`
	StrategyID       string             `json:"strategy_id"`
	BlockID          string             `json:"block_id"`
	Position         int                `json:"position"`
	PriorityOverride *int               `json:"priority_override,omitempty"`
	IsEnabled        bool               `json:"is_enabled"`
	ConfigOverride   map[string]float64 `json:"config_override,omitempty"`
}

// PricingStrategy is a named, versioned, ordered set of blocks.
// Exactly one strategy per tenant may be the default at a time.
type PricingStrategy struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Name       string          `json:"name"`
	Version    int             `json:"version"`
	IsDefault  bool            `json:"is_default"`
	IsArchived bool            `json:"is_archived"`
	Blocks     []StrategyBlock `json:"blocks"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Bundle is a priced product candidate from the catalog
type Bundle struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Provider     string    `json:"provider"`
	BaseCost     float64   `json:"base_cost"`
	Currency     string    `json:"currency"`
	DataAmountMB int64     `json:"data_amount_mb"`
	IsUnlimited  bool      `json:"is_unlimited"`
	ValidityDays int       `json:"validity_days"`
	Countries    []string  `json:"countries"`
	Region       string    `json:"region,omitempty"`
	Groups       []string  `json:"groups"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CoversCountry reports whether the bundle covers the given country code
func (b *Bundle) CoversCountry(code string) bool {
	for _, c := range b.Countries {
		if c == code {
			return true
		}
	}
	return false
}

// InGroup reports whether the bundle carries the given group tag
func (b *Bundle) InGroup(group string) bool {
	for _, g := range b.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// PriorBundleRef references a previously purchased bundle for
// unused-day carry-over
type PriorBundleRef struct {
	BundleID     string `json:"bundle_id"`
	ValidityDays int    `json:"validity_days"`
	DaysConsumed int    `json:"days_consumed"`
}

// PricingContext is the immutable input of one evaluation
type PricingContext struct {
	Destination   string          `json:"destination" binding:"required"`
	Days          int             `json:"days" binding:"required,min=1"`
	Group         string          `json:"group,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	PromoCode     string          `json:"promo_code,omitempty"`
	PriorBundle   *PriorBundleRef `json:"prior_bundle,omitempty"`
	TenantID      string          `json:"tenant_id,omitempty"`
	StrategyID    string          `json:"strategy_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Debug         bool            `json:"debug,omitempty"`
}

// PricingStep is one recorded before/after adjustment. Steps are
// append-only and totally ordered within a single run.
type PricingStep struct {
	Order       int                    `json:"order"`
	Name        string                 `json:"name"`
	RuleID      string                 `json:"rule_id,omitempty"`
	PriceBefore float64                `json:"price_before"`
	PriceAfter  float64                `json:"price_after"`
	Impact      float64                `json:"impact"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// AppliedRule summarizes one fired rule in a breakdown
type AppliedRule struct {
	RuleID   string  `json:"rule_id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Impact   float64 `json:"impact"`
}

// PricingBreakdown is the terminal aggregate of a pipeline run.
// Immutable once produced; cached by context fingerprint.
type PricingBreakdown struct {
	BundleID       string                 `json:"bundle_id"`
	Currency       string                 `json:"currency"`
	BaseCost       float64                `json:"base_cost"`
	Markup         float64                `json:"markup"`
	DiscountRate   float64                `json:"discount_rate"`
	DiscountValue  float64                `json:"discount_value"`
	ProcessingRate float64                `json:"processing_rate"`
	ProcessingCost float64                `json:"processing_cost"`
	FinalPrice     float64                `json:"final_price"`
	NetProfit      float64                `json:"net_profit"`
	RevenueAfterFx float64                `json:"revenue_after_processing"`
	Savings        float64                `json:"savings"`
	UnusedDays     int                    `json:"unused_days"`
	SelectedReason string                 `json:"selected_reason,omitempty"`
	AppliedRules   []AppliedRule          `json:"applied_rules"`
	Steps          []PricingStep          `json:"steps"`
	FromCache      bool                   `json:"from_cache"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	Debug          map[string]interface{} `json:"debug,omitempty"`
	CalculatedAt   time.Time              `json:"calculated_at"`
}

// Sync job types
const (
	SyncTypeFull    = "FULL"
	SyncTypeCountry = "COUNTRY"
	SyncTypeGroup   = "GROUP"
)

// Sync job statuses
const (
	JobStatusPending    = "PENDING"
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
	JobStatusCancelled  = "CANCELLED"
)

// CatalogSyncJob tracks a long-running batch evaluation over a scope
type CatalogSyncJob struct {
	ID          string     `db:"id" json:"id"`
	Type        string     `db:"type" json:"type"`
	Scope       string     `db:"scope" json:"scope"`
	Status      string     `db:"status" json:"status"`
	Processed   int        `db:"processed" json:"processed"`
	Added       int        `db:"added" json:"added"`
	Updated     int        `db:"updated" json:"updated"`
	Error       string     `db:"error" json:"error,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// ConflictingJobInfo references the job already holding a scope
type ConflictingJobInfo struct {
	JobID     string     `json:"job_id"`
	Scope     string     `json:"scope"`
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}
