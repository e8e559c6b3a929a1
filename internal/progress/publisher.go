package progress

import (
	"sync"

	"pricing-service/internal/models"
	"pricing-service/internal/util"

	"go.uber.org/zap"
)

const subscriberBuffer = 256

// Publisher fans out pipeline progress to subscribers keyed by
// correlation id. Events are delivered in emission order; once all
// subscribers of an id have disconnected nothing is buffered for it.
type Publisher struct {
	mu        sync.RWMutex
	stepSubs  map[string]map[int]chan models.StepEvent
	stageSubs map[string]map[int]chan models.StageEvent
	syncSubs  map[string]map[int]chan models.SyncProgressEvent
	nextID    int
	logger    *zap.Logger
}

// NewPublisher creates an empty publisher
func NewPublisher() *Publisher {
	return &Publisher{
		stepSubs:  make(map[string]map[int]chan models.StepEvent),
		stageSubs: make(map[string]map[int]chan models.StageEvent),
		syncSubs:  make(map[string]map[int]chan models.SyncProgressEvent),
		logger:    util.GetLogger(),
	}
}

// SubscribeSteps registers for per-step events of a correlation id.
// The returned cancel func detaches and closes the channel.
func (p *Publisher) SubscribeSteps(correlationID string) (<-chan models.StepEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stepSubs[correlationID] == nil {
		p.stepSubs[correlationID] = make(map[int]chan models.StepEvent)
	}
	id := p.nextID
	p.nextID++
	ch := make(chan models.StepEvent, subscriberBuffer)
	p.stepSubs[correlationID][id] = ch
	util.ActiveSubscriptions.Inc()

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if subs, ok := p.stepSubs[correlationID]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
				util.ActiveSubscriptions.Dec()
			}
			if len(subs) == 0 {
				delete(p.stepSubs, correlationID)
			}
		}
	}
}

// SubscribeStages registers for named-stage events of a correlation id
func (p *Publisher) SubscribeStages(correlationID string) (<-chan models.StageEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stageSubs[correlationID] == nil {
		p.stageSubs[correlationID] = make(map[int]chan models.StageEvent)
	}
	id := p.nextID
	p.nextID++
	ch := make(chan models.StageEvent, subscriberBuffer)
	p.stageSubs[correlationID][id] = ch
	util.ActiveSubscriptions.Inc()

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if subs, ok := p.stageSubs[correlationID]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
				util.ActiveSubscriptions.Dec()
			}
			if len(subs) == 0 {
				delete(p.stageSubs, correlationID)
			}
		}
	}
}

// SubscribeSync registers for progress events of a sync job id
func (p *Publisher) SubscribeSync(jobID string) (<-chan models.SyncProgressEvent, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.syncSubs[jobID] == nil {
		p.syncSubs[jobID] = make(map[int]chan models.SyncProgressEvent)
	}
	id := p.nextID
	p.nextID++
	ch := make(chan models.SyncProgressEvent, subscriberBuffer)
	p.syncSubs[jobID][id] = ch
	util.ActiveSubscriptions.Inc()

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if subs, ok := p.syncSubs[jobID]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
				util.ActiveSubscriptions.Dec()
			}
			if len(subs) == 0 {
				delete(p.syncSubs, jobID)
			}
		}
	}
}

// PublishStep delivers a step event to every subscriber of the id.
// A no-op when nobody is subscribed.
func (p *Publisher) PublishStep(correlationID string, ev models.StepEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.stepSubs[correlationID] {
		select {
		case ch <- ev:
		default:
			// Slow consumer; dropping keeps the pipeline from blocking.
			p.logger.Warn("Dropping step event for slow subscriber",
				zap.String("correlation_id", correlationID))
		}
	}
}

// PublishStage delivers a stage event to every subscriber of the id
func (p *Publisher) PublishStage(correlationID string, ev models.StageEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.stageSubs[correlationID] {
		select {
		case ch <- ev:
		default:
			p.logger.Warn("Dropping stage event for slow subscriber",
				zap.String("correlation_id", correlationID))
		}
	}
}

// PublishSync delivers a sync progress event to every subscriber of the job
func (p *Publisher) PublishSync(jobID string, ev models.SyncProgressEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.syncSubs[jobID] {
		select {
		case ch <- ev:
		default:
			p.logger.Warn("Dropping sync event for slow subscriber",
				zap.String("job_id", jobID))
		}
	}
}
