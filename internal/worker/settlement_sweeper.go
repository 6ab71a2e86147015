// Package worker hosts the background loops that run beside the HTTP API.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/classifier"
	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
	"github.com/bantec-cbs/interbank-orchestrator/internal/observability"
	"github.com/bantec-cbs/interbank-orchestrator/internal/store"
	"github.com/bantec-cbs/interbank-orchestrator/internal/switchclient"
)

// PendingQueue lists and removes instructions awaiting out-of-band settlement.
type PendingQueue interface {
	Pending() ([]store.PendingInstruction, error)
	DeletePending(instructionRef string) error
}

// Ledger applies the deferred local update once a late settlement confirms.
type Ledger interface {
	Apply(rec domain.LocalTransactionRecord) error
}

// staleAfter bounds how long a pending instruction is chased. The switch SLA
// is 24 hours; past twice that the instruction is dropped from the sweep and
// left to the next authoritative account refresh.
const staleAfter = 48 * time.Hour

// SettlementSweeper periodically re-queries instructions that exhausted the
// client-side polling budget. It is the only component allowed to apply a
// ledger update for an attempt the orchestrator already abandoned.
type SettlementSweeper struct {
	queue    PendingQueue
	gateway  switchclient.Gateway
	ledger   Ledger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSettlementSweeper constructs a sweeper with a default five minute interval.
func NewSettlementSweeper(queue PendingQueue, gateway switchclient.Gateway, ledger Ledger) *SettlementSweeper {
	return &SettlementSweeper{
		queue:    queue,
		gateway:  gateway,
		ledger:   ledger,
		interval: 5 * time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *SettlementSweeper) WithInterval(interval time.Duration) *SettlementSweeper {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *SettlementSweeper) Start(ctx context.Context) {
	zap.L().Info("settlement sweeper starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("settlement sweeper context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("settlement sweeper stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running sweep loop.
func (w *SettlementSweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the sweeper in a goroutine and returns a stop function.
func (w *SettlementSweeper) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *SettlementSweeper) runOnce(ctx context.Context) {
	if err := w.Sweep(ctx); err != nil {
		observability.IncrementWorkerRun("settlement", "failed")
		zap.L().Error("settlement sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("settlement", "success")
}

// Sweep re-queries every pending instruction once. A confirmed settlement
// applies its deferred ledger record and leaves the queue; a confirmed
// failure just leaves the queue; anything else stays for the next sweep.
func (w *SettlementSweeper) Sweep(ctx context.Context) error {
	pending, err := w.queue.Pending()
	if err != nil {
		return fmt.Errorf("load pending instructions: %w", err)
	}

	remaining := 0
	for _, p := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pr, err := w.gateway.TransferStatus(ctx, p.InstructionRef)
		if err != nil {
			zap.L().Warn("pending instruction query failed",
				zap.String("instruction_ref", p.InstructionRef),
				zap.Error(err))
			remaining++
			continue
		}

		out := classifier.Classify(classifier.FromPollResult(pr))
		switch {
		case out.Kind == domain.OutcomeSuccess:
			if err := w.ledger.Apply(p.Record); err != nil {
				zap.L().Error("late settlement ledger update failed",
					zap.String("instruction_ref", p.InstructionRef),
					zap.Error(err))
				remaining++
				continue
			}
			w.remove(p.InstructionRef)
			zap.L().Info("late settlement applied",
				zap.String("instruction_ref", p.InstructionRef),
				zap.Duration("waited", time.Since(p.FirstObserved)))

		case out.Kind == domain.OutcomeFailed &&
			(out.Code != "" || classifier.NormalizeStatus(pr.RawStatus) == domain.PollFailed):
			w.remove(p.InstructionRef)
			zap.L().Info("pending instruction failed on switch",
				zap.String("instruction_ref", p.InstructionRef),
				zap.String("code", out.Code))

		default:
			if time.Since(p.FirstObserved) > staleAfter {
				w.remove(p.InstructionRef)
				zap.L().Warn("giving up on stale pending instruction",
					zap.String("instruction_ref", p.InstructionRef),
					zap.Time("first_observed", p.FirstObserved))
				continue
			}
			remaining++
		}
	}

	observability.SetPendingSettlement(remaining)
	return nil
}

func (w *SettlementSweeper) remove(instructionRef string) {
	if err := w.queue.DeletePending(instructionRef); err != nil {
		zap.L().Error("delete pending instruction failed",
			zap.String("instruction_ref", instructionRef),
			zap.Error(err))
	}
}
