package audit

import (
	"context"
	"sync"
	"time"

	"tandem-api/internal/observability/logger"

	"go.uber.org/zap"
)

// Recorder is one audit sink. The pg recorder writes append-only rows;
// additional recorders can be registered without touching publishers.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

const (
	// eventBuffer bounds the publish queue. A full buffer drops the event
	// with a log line rather than blocking the request path.
	eventBuffer = 1024

	// recordTimeout bounds a single recorder invocation so one slow sink
	// cannot stall the dispatcher indefinitely.
	recordTimeout = 5 * time.Second
)

// Publisher is the fire-and-forget entry point for audit events.
//
// Publish is non-blocking from the caller's perspective: the event goes into
// a buffered channel consumed by one dispatcher goroutine, which preserves
// publish order per publisher. No ordering is guaranteed across recorders.
type Publisher struct {
	events    chan Event
	recorders []Recorder
	log       *logger.Logger

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewPublisher creates a Publisher and starts its dispatcher goroutine.
func NewPublisher(log *logger.Logger, recorders ...Recorder) *Publisher {
	p := &Publisher{
		events:    make(chan Event, eventBuffer),
		recorders: recorders,
		log:       log,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Publish queues an event for recording. It never blocks and never returns
// an error: audit failure must not reach the caller. Events published after
// Close are dropped.
func (p *Publisher) Publish(event Event) {
	select {
	case <-p.quit:
		return
	default:
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case p.events <- event:
	default:
		// Buffer full: losing an audit record is acceptable degradation,
		// blocking a user request is not.
		p.log.Warn(context.Background(), "audit buffer full, dropping event",
			logger.Module("audit"),
			logger.Action("publish"),
			zap.String("audit_action", event.Action),
			zap.String("resource_type", event.ResourceType),
			zap.String("outcome", string(event.Outcome)),
		)
	}
}

// Close stops the dispatcher after draining queued events. Safe to call
// more than once.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})
	<-p.done
}

// dispatch is the single consumer of the event channel. On shutdown it
// drains whatever is already queued, then exits.
func (p *Publisher) dispatch() {
	defer close(p.done)

	for {
		select {
		case event := <-p.events:
			p.fanOut(event)
		case <-p.quit:
			for {
				select {
				case event := <-p.events:
					p.fanOut(event)
				default:
					return
				}
			}
		}
	}
}

// fanOut delivers one event to every recorder.
func (p *Publisher) fanOut(event Event) {
	for _, recorder := range p.recorders {
		p.record(recorder, event)
	}
}

// record invokes one recorder with a bounded context. Failures are logged
// for operators and otherwise discarded.
func (p *Publisher) record(recorder Recorder, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := recorder.Record(ctx, event); err != nil {
		p.log.Error(ctx, "audit recorder failed",
			logger.Module("audit"),
			logger.Action("record"),
			zap.String("audit_action", event.Action),
			zap.String("resource_type", event.ResourceType),
			zap.String("outcome", string(event.Outcome)),
			zap.Error(err),
		)
	}
}
