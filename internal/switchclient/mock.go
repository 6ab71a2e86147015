package switchclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
)

// MockSwitch simulates the interbank switch in-process. Submissions are
// deduplicated by idempotency key, and each instruction reports PENDING for
// SettleAfter status queries before settling as COMPLETED. Used when no
// switch URL is configured and in tests.
type MockSwitch struct {
	// SettleAfter is how many status queries an instruction stays PENDING.
	SettleAfter int
	// RejectCode, when set, makes every submission fail with that business code.
	RejectCode string

	mu      sync.Mutex
	seen    map[string]string // idempotency key -> instruction ref
	queries map[string]int    // instruction ref -> status query count
}

func NewMockSwitch() *MockSwitch {
	return &MockSwitch{
		SettleAfter: 2,
		seen:        make(map[string]string),
		queries:     make(map[string]int),
	}
}

func (m *MockSwitch) SubmitTransfer(_ context.Context, req SubmitRequest) (SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RejectCode != "" {
		return SubmitResult{Accepted: false, Code: m.RejectCode, Message: "rejected by mock switch"}, nil
	}

	// Same key, same instruction: resubmission has no additional effect.
	if ref, ok := m.seen[req.IdempotencyKey]; ok {
		return SubmitResult{Accepted: true, InstructionRef: ref, RawStatus: "PENDIENTE"}, nil
	}

	ref := fmt.Sprintf("SWX-%06d", len(m.seen)+1)
	m.seen[req.IdempotencyKey] = ref
	m.queries[ref] = 0
	return SubmitResult{Accepted: true, InstructionRef: ref, RawStatus: "PENDIENTE"}, nil
}

func (m *MockSwitch) TransferStatus(_ context.Context, instructionRef string) (domain.PollResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, ok := m.queries[instructionRef]
	if !ok {
		return domain.PollResult{}, fmt.Errorf("instruction %s not found on switch", instructionRef)
	}
	m.queries[instructionRef] = count + 1

	if count < m.SettleAfter {
		return domain.PollResult{RawStatus: "PENDIENTE"}, nil
	}
	return domain.PollResult{RawStatus: "COMPLETADA"}, nil
}

func (m *MockSwitch) Banks(context.Context) ([]domain.Bank, error) {
	return RegisteredBanks(), nil
}

// RegisteredBanks is the static directory fallback used when the switch
// cannot be reached.
func RegisteredBanks() []domain.Bank {
	return []domain.Bank{
		{ID: "NEXUS_BANK", Name: "Nexus Bank", Code: "NEXUS_BANK", BIN: "270100"},
		{ID: "ECUSOL_BK", Name: "Ecusol Bank", Code: "ECUSOL_BK", BIN: "370100"},
		{ID: "ARCBANK", Name: "Arcbank", Code: "ARCBANK", BIN: "400000"},
	}
}

// SubmissionCount reports how many distinct instructions the mock accepted.
func (m *MockSwitch) SubmissionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
