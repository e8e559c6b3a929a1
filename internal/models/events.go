package models

import "time"

// Broker event types
const (
	EventTypeRulesChanged  = "RULES_CHANGED"
	EventTypeSyncRequested = "CATALOG_SYNC_REQUESTED"
	EventTypeSyncCompleted = "CATALOG_SYNC_COMPLETED"
)

// Invalidation scope kinds carried by RulesChanged events
const (
	ScopeGlobal  = "global"
	ScopeBundle  = "bundle"
	ScopeCountry = "country"
)

// Pipeline run states
const (
	StateInit       = "INIT"
	StateSelecting  = "SELECTING"
	StateResolving  = "RESOLVING"
	StateEvaluating = "EVALUATING"
	StateFinalizing = "FINALIZING"
	StateDone       = "DONE"
	StateFailed     = "FAILED"
)

// BaseEvent contains common fields for all broker events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RulesChangedEvent is published on any rule or strategy mutation so
// every instance can invalidate the affected cache scope
type RulesChangedEvent struct {
	BaseEvent
	RuleID     string `json:"rule_id,omitempty"`
	StrategyID string `json:"strategy_id,omitempty"`
	ScopeKind  string `json:"scope_kind"`
	ScopeKey   string `json:"scope_key,omitempty"`
}

// SyncRequestedEvent is published when a catalog sync is triggered
type SyncRequestedEvent struct {
	BaseEvent
	JobID    string `json:"job_id"`
	SyncType string `json:"sync_type"`
	Scope    string `json:"scope"`
}

// SyncCompletedEvent is published when a sync job reaches a terminal status
type SyncCompletedEvent struct {
	BaseEvent
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
}

// StepEvent is one element of the calculation-steps stream. The terminal
// event has IsComplete set and carries the final breakdown or an error.
type StepEvent struct {
	CorrelationID  string            `json:"correlation_id"`
	Step           *PricingStep      `json:"step,omitempty"`
	IsComplete     bool              `json:"is_complete"`
	CompletedSteps int               `json:"completed_steps"`
	TotalSteps     int               `json:"total_steps"`
	Error          string            `json:"error,omitempty"`
	FinalBreakdown *PricingBreakdown `json:"final_breakdown,omitempty"`
}

// StageEvent is one element of the coarser named-stage progress stream
type StageEvent struct {
	Name         string                 `json:"name"`
	Timestamp    time.Time              `json:"timestamp"`
	State        string                 `json:"state"`
	AppliedRules []AppliedRule          `json:"applied_rules,omitempty"`
	Debug        map[string]interface{} `json:"debug,omitempty"`
}

// SyncProgressEvent is one element of the catalog-sync progress stream
type SyncProgressEvent struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Processed int       `json:"processed"`
	Added     int       `json:"added"`
	Updated   int       `json:"updated"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
