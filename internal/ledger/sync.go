// Package ledger applies the optimistic local bookkeeping for a confirmed
// transfer. The optimistic update is a latency hiding technique for the UI:
// it is never authoritative and is overwritten wholesale by the next refresh
// from the accounts service.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bantec-cbs/interbank-orchestrator/internal/accounts"
	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
	"github.com/bantec-cbs/interbank-orchestrator/internal/store"
	"go.uber.org/zap"
)

// Store is the slice of the local store the ledger needs.
type Store interface {
	AppendHistory(rec domain.LocalTransactionRecord) (bool, error)
	Balance(accountID string) (domain.Account, error)
	PutBalance(acc domain.Account) error
	ReplaceBalances(accounts []domain.Account) error
}

const refreshTimeout = 15 * time.Second

// Sync owns the local history view and cached balances.
type Sync struct {
	store  Store
	source accounts.Source
	logger *zap.Logger

	wg sync.WaitGroup
}

func NewSync(st Store, source accounts.Source, logger *zap.Logger) *Sync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sync{store: st, source: source, logger: logger}
}

// Apply records a confirmed transfer exactly once (deduplicated by
// instruction reference), adjusts the cached balance by the signed amount,
// and kicks off an asynchronous authoritative refresh.
func (s *Sync) Apply(rec domain.LocalTransactionRecord) error {
	written, err := s.store.AppendHistory(rec)
	if err != nil {
		return fmt.Errorf("append local history: %w", err)
	}
	if !written {
		s.logger.Debug("ledger record already applied",
			zap.String("instruction_ref", rec.InstructionRef))
		return nil
	}

	acc, err := s.store.Balance(rec.AccountID)
	switch {
	case err == nil:
		acc.Balance = acc.Balance.Add(rec.SignedAmount)
		if err := s.store.PutBalance(acc); err != nil {
			return fmt.Errorf("update cached balance: %w", err)
		}
	case errors.Is(err, store.ErrNotFound):
		// No cached figure to adjust; the refresh below will seed it.
	default:
		return fmt.Errorf("load cached balance: %w", err)
	}

	s.logger.Info("optimistic ledger update applied",
		zap.String("account_id", rec.AccountID),
		zap.String("instruction_ref", rec.InstructionRef),
		zap.String("signed_amount", rec.SignedAmount.StringFixed(2)))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn("authoritative refresh failed", zap.Error(err))
		}
	}()

	return nil
}

// Refresh overwrites the balance cache with the authoritative account list.
// An empty answer is ignored: it means the source has nothing to say, not
// that every account vanished.
func (s *Sync) Refresh(ctx context.Context) error {
	list, err := s.source.RefreshAccounts(ctx)
	if err != nil {
		return fmt.Errorf("refresh accounts: %w", err)
	}
	if len(list) == 0 {
		return nil
	}
	if err := s.store.ReplaceBalances(list); err != nil {
		return fmt.Errorf("replace cached balances: %w", err)
	}
	return nil
}

// Wait blocks until in-flight refreshes finish. Used on shutdown and in
// tests.
func (s *Sync) Wait() {
	s.wg.Wait()
}
