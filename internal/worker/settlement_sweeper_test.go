package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bantec-cbs/interbank-orchestrator/internal/classifier"
	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
	"github.com/bantec-cbs/interbank-orchestrator/internal/store"
	"github.com/bantec-cbs/interbank-orchestrator/internal/switchclient"
)

type memQueue struct {
	entries map[string]store.PendingInstruction
}

func newMemQueue(entries ...store.PendingInstruction) *memQueue {
	q := &memQueue{entries: make(map[string]store.PendingInstruction)}
	for _, e := range entries {
		q.entries[e.InstructionRef] = e
	}
	return q
}

func (q *memQueue) Pending() ([]store.PendingInstruction, error) {
	out := make([]store.PendingInstruction, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e)
	}
	return out, nil
}

func (q *memQueue) DeletePending(instructionRef string) error {
	delete(q.entries, instructionRef)
	return nil
}

type statusGateway struct {
	statuses map[string]domain.PollResult
	errs     map[string]error
}

func (g *statusGateway) SubmitTransfer(context.Context, switchclient.SubmitRequest) (switchclient.SubmitResult, error) {
	return switchclient.SubmitResult{}, errors.New("sweeper must not submit")
}

func (g *statusGateway) TransferStatus(_ context.Context, ref string) (domain.PollResult, error) {
	if err, ok := g.errs[ref]; ok {
		return domain.PollResult{}, err
	}
	return g.statuses[ref], nil
}

type recordingLedger struct {
	applied []domain.LocalTransactionRecord
}

func (l *recordingLedger) Apply(rec domain.LocalTransactionRecord) error {
	l.applied = append(l.applied, rec)
	return nil
}

func pendingEntry(ref string, observed time.Time) store.PendingInstruction {
	return store.PendingInstruction{
		InstructionRef: ref,
		Record: domain.LocalTransactionRecord{
			AccountID:      "acc-1",
			SignedAmount:   decimal.RequireFromString("-40.00"),
			Type:           domain.TxTypeTransferOut,
			Description:    "late transfer",
			Timestamp:      observed,
			InstructionRef: ref,
		},
		FirstObserved: observed,
	}
}

func TestSweepAppliesLateSettlement(t *testing.T) {
	now := time.Now().UTC()
	queue := newMemQueue(pendingEntry("ins-late", now))
	gw := &statusGateway{statuses: map[string]domain.PollResult{
		"ins-late": {RawStatus: "COMPLETADA"},
	}}
	ledger := &recordingLedger{}

	sweeper := NewSettlementSweeper(queue, gw, ledger)
	require.NoError(t, sweeper.Sweep(context.Background()))

	require.Len(t, ledger.applied, 1)
	require.Equal(t, "ins-late", ledger.applied[0].InstructionRef)
	require.Empty(t, queue.entries)
}

func TestSweepDropsConfirmedFailureWithoutLedgerUpdate(t *testing.T) {
	now := time.Now().UTC()
	queue := newMemQueue(pendingEntry("ins-fail", now))
	gw := &statusGateway{statuses: map[string]domain.PollResult{
		"ins-fail": {RawStatus: "DEVUELTA", RawCode: classifier.CodeAccountClosed},
	}}
	ledger := &recordingLedger{}

	sweeper := NewSettlementSweeper(queue, gw, ledger)
	require.NoError(t, sweeper.Sweep(context.Background()))

	require.Empty(t, ledger.applied)
	require.Empty(t, queue.entries)
}

func TestSweepKeepsStillPendingAndUnreachable(t *testing.T) {
	now := time.Now().UTC()
	queue := newMemQueue(
		pendingEntry("ins-pending", now),
		pendingEntry("ins-down", now),
	)
	gw := &statusGateway{
		statuses: map[string]domain.PollResult{
			"ins-pending": {RawStatus: "EN_PROCESO"},
		},
		errs: map[string]error{
			"ins-down": errors.New("switch status endpoint returned 502"),
		},
	}
	ledger := &recordingLedger{}

	sweeper := NewSettlementSweeper(queue, gw, ledger)
	require.NoError(t, sweeper.Sweep(context.Background()))

	require.Empty(t, ledger.applied)
	require.Len(t, queue.entries, 2)
}

func TestSweepGivesUpOnStaleInstructions(t *testing.T) {
	old := time.Now().UTC().Add(-3 * 24 * time.Hour)
	queue := newMemQueue(pendingEntry("ins-stale", old))
	gw := &statusGateway{statuses: map[string]domain.PollResult{
		"ins-stale": {RawStatus: "EN_PROCESO"},
	}}
	ledger := &recordingLedger{}

	sweeper := NewSettlementSweeper(queue, gw, ledger)
	require.NoError(t, sweeper.Sweep(context.Background()))

	require.Empty(t, ledger.applied)
	require.Empty(t, queue.entries)
}
