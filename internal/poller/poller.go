package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"ecommerce-events/internal/processor"
)

// Event is one classified change, ready for publication.
type Event struct {
	Topic    string
	Payload  any
	Modified time.Time // source row modification time
}

// Batch is the result of one polling pass. Latest is the modification
// time of the newest row scanned; it can run ahead of the last event
// when trailing rows classify to no event (e.g. price cache seeding).
// Commit, when non-nil, applies source state staged during the poll
// (last-seen caches); the poller calls it only after the whole batch
// is delivered, so a failed cycle re-yields the same events.
type Batch struct {
	Events []Event
	Latest time.Time
	Commit func()
}

// Source yields rows modified strictly after since, ascending by
// modification time, at most limit rows. An unset (zero) since means
// scan from the beginning of the table.
type Source interface {
	Poll(ctx context.Context, since time.Time, limit int) (Batch, error)
}

// Publisher delivers one event and blocks until the broker
// acknowledges it or a bounded timeout expires.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Transformer optionally reshapes outgoing events. Returning
// processor.ErrEventRejected drops the event without failing the cycle.
type Transformer interface {
	Transform(topic string, payload any) (any, error)
}

// Stats is a snapshot of one poller's counters.
type Stats struct {
	Cycles          uint64
	FailedCycles    uint64
	EventsPublished uint64
}

// Config wires one table's polling loop.
type Config struct {
	Name        string
	Source      Source
	Publisher   Publisher
	Transformer Transformer // optional
	Interval    time.Duration
	BatchSize   int
	Wake        <-chan struct{} // optional early-cycle trigger
	Logger      *logrus.Logger
}

// Poller runs one table's polling loop. Each poller owns its watermark
// exclusively; pollers share only the publisher.
type Poller struct {
	name        string
	source      Source
	publisher   Publisher
	transformer Transformer
	interval    time.Duration
	batchSize   int
	wake        <-chan struct{}
	logger      *logrus.Logger

	// watermark is the last-seen modification time as unix nanos,
	// 0 while unset. Atomic so the health reporter can read it while
	// the loop runs.
	watermark       atomic.Int64
	cycles          atomic.Uint64
	failedCycles    atomic.Uint64
	eventsPublished atomic.Uint64
}

func New(cfg Config) *Poller {
	return &Poller{
		name:        cfg.Name,
		source:      cfg.Source,
		publisher:   cfg.Publisher,
		transformer: cfg.Transformer,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		wake:        cfg.Wake,
		logger:      cfg.Logger,
	}
}

func (p *Poller) Name() string { return p.name }

// Watermark returns the current watermark, zero while unset. It is
// never persisted; a restart re-scans the table from the beginning.
func (p *Poller) Watermark() time.Time {
	n := p.watermark.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:          p.cycles.Load(),
		FailedCycles:    p.failedCycles.Load(),
		EventsPublished: p.eventsPublished.Load(),
	}
}

// Run polls until ctx is cancelled. Cancellation is observed between
// cycles only; a cycle in flight always runs to completion, so the
// batch's delivery accounting is never truncated by shutdown.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Infof("Starting %s poller (interval %s, batch %d)", p.name, p.interval, p.batchSize)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.cycle(context.WithoutCancel(ctx)); err != nil {
			p.failedCycles.Add(1)
			p.logger.Errorf("Error in %s cycle: %v", p.name, err)
		}

		select {
		case <-ctx.Done():
			p.logger.Infof("Stopped %s poller", p.name)
			return
		case <-ticker.C:
		case <-p.wake:
			p.logger.Debugf("%s poller woken ahead of tick", p.name)
		}
	}
}

// cycle runs one poll-classify-publish pass. On any poll or publish
// error the watermark is left untouched, so the next tick retries the
// same window; events already delivered this cycle will repeat
// (at-least-once delivery).
func (p *Poller) cycle(ctx context.Context) error {
	p.cycles.Add(1)

	batch, err := p.source.Poll(ctx, p.Watermark(), p.batchSize)
	if err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}

	for _, ev := range batch.Events {
		payload := ev.Payload
		if p.transformer != nil {
			payload, err = p.transformer.Transform(ev.Topic, ev.Payload)
			if err != nil {
				if errors.Is(err, processor.ErrEventRejected) {
					p.logger.Debugf("Event rejected by transformer on %s", ev.Topic)
					continue
				}
				// A broken transform must not wedge the loop on one
				// row forever; skip the event and keep going.
				p.logger.Errorf("Error transforming %s event: %v", ev.Topic, err)
				continue
			}
		}

		if err := p.publisher.Publish(ctx, ev.Topic, payload); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", ev.Topic, err)
		}
		p.eventsPublished.Add(1)
	}

	if batch.Commit != nil {
		batch.Commit()
	}
	p.advance(batch.Latest)

	if n := len(batch.Events); n > 0 {
		p.logger.Infof("Processed %d %s events (watermark %s)", n, p.name, p.Watermark().Format(time.RFC3339))
	}
	return nil
}

// advance moves the watermark forward, never backward. The source
// query's ascending order makes regressions impossible in practice;
// the guard keeps the invariant even for a misbehaving source.
func (p *Poller) advance(t time.Time) {
	if t.IsZero() {
		return
	}
	if n := t.UnixNano(); n > p.watermark.Load() {
		p.watermark.Store(n)
	}
}
