package service

import (
	"context"
	"sync"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultDispatchInterval = 5 * time.Second
	defaultDispatchBatch    = 50
	dispatchCycleTimeout    = 30 * time.Second
)

// OutboxDispatcher drains the event outbox to the configured publisher on a
// fixed interval. Delivery is at-least-once: an event is marked published
// only after a successful publish, and a failure leaves it queued for the
// next cycle. Consumers deduplicate by the event's dedupe id.
type OutboxDispatcher struct {
	outbox    domain.EventOutbox
	publisher domain.EventPublisher
	logger    *zap.Logger

	interval  time.Duration
	batchSize int
	stopCh    chan struct{}
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool
}

func NewOutboxDispatcher(outbox domain.EventOutbox, publisher domain.EventPublisher, logger *zap.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  defaultDispatchInterval,
		batchSize: defaultDispatchBatch,
		stopCh:    make(chan struct{}),
	}
}

func (d *OutboxDispatcher) SetInterval(interval time.Duration) {
	if interval > 0 {
		d.interval = interval
	}
}

func (d *OutboxDispatcher) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		d.logger.Info("outbox dispatcher started", zap.Duration("interval", d.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), dispatchCycleTimeout)
				if _, err := d.DrainOnce(ctx); err != nil {
					d.logger.Error("outbox drain failed", zap.Error(err))
				}
				cancel()
			case <-d.stopCh:
				d.logger.Info("outbox dispatcher stopped")
				return
			}
		}
	}()
}

func (d *OutboxDispatcher) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
}

// DrainOnce publishes one batch of unpublished events in enqueue order and
// returns how many were delivered. The first publish failure stops the batch
// so ordering is preserved for the retry.
func (d *OutboxDispatcher) DrainOnce(ctx context.Context) (int, error) {
	events, err := d.outbox.ListUnpublished(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, e := range events {
		if err := d.publisher.Publish(ctx, e); err != nil {
			d.logger.Warn("event publish failed, will retry",
				zap.String("event_id", e.ID.String()),
				zap.String("kind", string(e.Kind)),
				zap.Error(err))
			return published, nil
		}
		if err := d.outbox.MarkPublished(ctx, e.ID); err != nil {
			return published, err
		}
		metrics.EventsPublishedTotal.Inc()
		published++
	}

	return published, nil
}

// LoggingPublisher is the default publisher: it writes each event to the
// structured log. Deployments with a real bus swap in their own publisher.
type LoggingPublisher struct {
	logger *zap.Logger
}

func NewLoggingPublisher(logger *zap.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(_ context.Context, e domain.OutboxEvent) error {
	p.logger.Info("event published",
		zap.String("event_id", e.ID.String()),
		zap.String("kind", string(e.Kind)),
		zap.String("dedupe_id", e.DedupeID),
		zap.ByteString("payload", e.Payload))
	return nil
}
