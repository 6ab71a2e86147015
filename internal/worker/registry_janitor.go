package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/observability"
)

// AttemptEvictor drops finished attempts that outlived their retention window.
type AttemptEvictor interface {
	Evict(olderThan time.Duration) int
}

// RegistryJanitor periodically evicts terminal attempt machines so the
// in-memory registry stays bounded. Evicted ids stop resolving; their
// movements remain in the local history.
type RegistryJanitor struct {
	registry  AttemptEvictor
	retention time.Duration
	interval  time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewRegistryJanitor constructs a janitor keeping finished attempts for one
// hour, sweeping every ten minutes.
func NewRegistryJanitor(registry AttemptEvictor) *RegistryJanitor {
	return &RegistryJanitor{
		registry:  registry,
		retention: time.Hour,
		interval:  10 * time.Minute,
		stopCh:    make(chan struct{}),
	}
}

// WithRetention updates how long finished attempts stay queryable.
func (j *RegistryJanitor) WithRetention(retention time.Duration) *RegistryJanitor {
	if retention > 0 {
		j.retention = retention
	}
	return j
}

// WithInterval updates the sweep interval.
func (j *RegistryJanitor) WithInterval(interval time.Duration) *RegistryJanitor {
	if interval > 0 {
		j.interval = interval
	}
	return j
}

// Start blocks and evicts at the configured interval.
func (j *RegistryJanitor) Start(ctx context.Context) {
	zap.L().Info("registry janitor starting",
		zap.Duration("interval", j.interval),
		zap.Duration("retention", j.retention))
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("registry janitor context canceled")
			return
		case <-j.stopCh:
			zap.L().Info("registry janitor stop signal received")
			return
		case <-ticker.C:
			j.runOnce()
		}
	}
}

// Stop stops the running eviction loop.
func (j *RegistryJanitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// Run starts the janitor in a goroutine and returns a stop function.
func (j *RegistryJanitor) Run(ctx context.Context) func() {
	go j.Start(ctx)
	return j.Stop
}

func (j *RegistryJanitor) runOnce() {
	evicted := j.registry.Evict(j.retention)
	if evicted > 0 {
		zap.L().Info("evicted finished attempts", zap.Int("count", evicted))
	}
	observability.IncrementWorkerRun("registry_janitor", "success")
}
