package accounts

import (
	"context"

	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
)

// StaticSource serves a fixed account list. Used when no accounts service is
// configured: a refresh then confirms whatever was seeded and nothing else.
type StaticSource struct {
	accounts []domain.Account
}

func NewStaticSource(accounts []domain.Account) *StaticSource {
	return &StaticSource{accounts: accounts}
}

func (s *StaticSource) RefreshAccounts(context.Context) ([]domain.Account, error) {
	out := make([]domain.Account, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}
