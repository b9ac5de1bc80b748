package health

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ecommerce-events/internal/models"
	"ecommerce-events/internal/poller"
)

// Reporter periodically logs each poller's counters and publishes them
// to the health topic so the dashboard can surface producer lag.
type Reporter struct {
	pollers   []*poller.Poller
	publisher poller.Publisher
	topic     string
	interval  time.Duration
	logger    *logrus.Logger
}

func NewReporter(pollers []*poller.Poller, publisher poller.Publisher, topic string, interval time.Duration, logger *logrus.Logger) *Reporter {
	return &Reporter{
		pollers:   pollers,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		logger:    logger,
	}
}

// Run reports until ctx is cancelled. A failed health publish is only
// logged; health reporting must never affect the pollers.
func (r *Reporter) Run(ctx context.Context) {
	r.logger.Infof("Starting health reporter (interval %s)", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopped health reporter")
			return
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

func (r *Reporter) report(ctx context.Context) {
	now := time.Now()
	for _, p := range r.pollers {
		stats := p.Stats()
		event := models.HealthEvent{
			Poller:          p.Name(),
			Cycles:          stats.Cycles,
			FailedCycles:    stats.FailedCycles,
			EventsPublished: stats.EventsPublished,
			Timestamp:       models.Timestamp(now),
		}
		if wm := p.Watermark(); !wm.IsZero() {
			event.Watermark = models.Timestamp(wm)
		}

		r.logger.Infof("Poller %s: %d cycles (%d failed), %d events published",
			p.Name(), stats.Cycles, stats.FailedCycles, stats.EventsPublished)

		if err := r.publisher.Publish(ctx, r.topic, event); err != nil {
			r.logger.Warnf("Failed to publish health event: %v", err)
		}
	}
}
