package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultScanInterval = 5 * time.Minute
	scanCycleTimeout    = 15 * time.Minute
)

// ScannerStats are the running counters the scanner exposes to operators.
type ScannerStats struct {
	TotalScans         int64      `json:"total_scans"`
	TotalPromotions    int64      `json:"total_promotions"`
	TotalHeld          int64      `json:"total_held"`
	TotalRejected      int64      `json:"total_rejected"`
	Errors             int64      `json:"errors"`
	LastScanDurationMs int64      `json:"last_scan_duration_ms"`
	LastScanAt         *time.Time `json:"last_scan_at,omitempty"`
	Running            bool       `json:"running"`
}

// PromotionScannerJob is the supervisor loop: on a fixed interval it sweeps
// each promotable tier in sequence and accumulates statistics. One bad tier
// never halts the loop; the error is counted and the next tier proceeds.
type PromotionScannerJob struct {
	crystallizer *CrystallizationService
	tiers        []domain.Tier
	logger       *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	stats   ScannerStats
	started bool
}

func NewPromotionScannerJob(crystallizer *CrystallizationService, logger *zap.Logger) *PromotionScannerJob {
	return &PromotionScannerJob{
		crystallizer: crystallizer,
		tiers:        domain.PromotableTiers(),
		logger:       logger,
		interval:     defaultScanInterval,
		stopCh:       make(chan struct{}),
	}
}

func (j *PromotionScannerJob) SetInterval(d time.Duration) {
	if d > 0 {
		j.interval = d
	}
}

// SetTiers overrides which tiers the loop sweeps, e.g. to disable a tier.
func (j *PromotionScannerJob) SetTiers(tiers []domain.Tier) {
	if len(tiers) > 0 {
		j.tiers = tiers
	}
}

// Start launches the background loop. Stop waits for the in-flight cycle to
// finish; the bounded batch size keeps that wait bounded in time.
func (j *PromotionScannerJob) Start() {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return
	}
	j.started = true
	j.stats.Running = true
	j.mu.Unlock()

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.logger.Info("promotion scanner started", zap.Duration("interval", j.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), scanCycleTimeout)
				_ = j.RunOnce(ctx)
				cancel()
			case <-j.stopCh:
				j.logger.Info("promotion scanner stopped")
				return
			}
		}
	}()
}

func (j *PromotionScannerJob) Stop() {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return
	}
	j.started = false
	j.stats.Running = false
	j.mu.Unlock()

	close(j.stopCh)
	j.wg.Wait()
}

// RunOnce sweeps every enabled tier once, in order. Also the entry point for
// operator-triggered scans.
func (j *PromotionScannerJob) RunOnce(ctx context.Context) []SweepSummary {
	start := time.Now()
	var summaries []SweepSummary

	for _, tier := range j.tiers {
		if ctx.Err() != nil {
			j.logger.Warn("scan cycle cancelled", zap.String("tier", string(tier)))
			break
		}

		metrics.ScansTotal.WithLabelValues(string(tier)).Inc()

		summary, err := j.crystallizer.SweepTier(ctx, tier)
		if err != nil {
			if errors.Is(err, domain.ErrSweepInProgress) {
				j.logger.Debug("tier sweep already in progress, skipping",
					zap.String("tier", string(tier)))
				continue
			}
			metrics.SweepErrorsTotal.WithLabelValues(string(tier)).Inc()
			j.mu.Lock()
			j.stats.Errors++
			j.mu.Unlock()
			j.logger.Error("tier sweep failed",
				zap.String("tier", string(tier)), zap.Error(err))
			continue
		}

		metrics.SweepDuration.WithLabelValues(string(tier)).Observe(summary.Duration.Seconds())
		metrics.EntitiesMergedTotal.WithLabelValues(string(tier)).Add(float64(summary.Merged))
		for _, d := range summary.Decisions {
			metrics.DecisionsTotal.WithLabelValues(string(tier), string(d.Status)).Inc()
		}

		j.mu.Lock()
		j.stats.TotalPromotions += int64(summary.Approved)
		j.stats.TotalHeld += int64(summary.Held)
		j.stats.TotalRejected += int64(summary.Rejected)
		j.mu.Unlock()

		summaries = append(summaries, *summary)
	}

	elapsed := time.Since(start)
	now := time.Now()

	j.mu.Lock()
	j.stats.TotalScans++
	j.stats.LastScanDurationMs = elapsed.Milliseconds()
	j.stats.LastScanAt = &now
	j.mu.Unlock()

	return summaries
}

// Stats returns a snapshot of the running counters.
func (j *PromotionScannerJob) Stats() ScannerStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}
