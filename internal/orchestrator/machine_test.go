package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/classifier"
	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
	"github.com/bantec-cbs/interbank-orchestrator/internal/idempotency"
	"github.com/bantec-cbs/interbank-orchestrator/internal/store"
	"github.com/bantec-cbs/interbank-orchestrator/internal/switchclient"
)

type pollStep struct {
	result domain.PollResult
	err    error
}

type fakeGateway struct {
	mu           sync.Mutex
	submitted    []switchclient.SubmitRequest
	submitResult switchclient.SubmitResult
	submitErr    error
	polls        int
	pollScript   []pollStep
}

func (g *fakeGateway) SubmitTransfer(_ context.Context, req switchclient.SubmitRequest) (switchclient.SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return switchclient.SubmitResult{}, g.submitErr
	}
	g.submitted = append(g.submitted, req)
	return g.submitResult, nil
}

func (g *fakeGateway) TransferStatus(context.Context, string) (domain.PollResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.polls
	g.polls++
	if idx < len(g.pollScript) {
		step := g.pollScript[idx]
		return step.result, step.err
	}
	return domain.PollResult{RawStatus: "PENDIENTE"}, nil
}

func (g *fakeGateway) pollCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.polls
}

func (g *fakeGateway) submissions() []switchclient.SubmitRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]switchclient.SubmitRequest(nil), g.submitted...)
}

type fakeLedger struct {
	mu      sync.Mutex
	applied []domain.LocalTransactionRecord
}

func (l *fakeLedger) Apply(rec domain.LocalTransactionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applied = append(l.applied, rec)
	return nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.applied)
}

type fakePending struct {
	mu    sync.Mutex
	saved []store.PendingInstruction
}

func (p *fakePending) SavePending(instr store.PendingInstruction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, instr)
	return nil
}

func (p *fakePending) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

type fakeAccounts struct {
	account domain.Account
}

func (a *fakeAccounts) Balance(accountID string) (domain.Account, error) {
	if accountID != a.account.ID {
		return domain.Account{}, store.ErrNotFound
	}
	return a.account, nil
}

type memKeyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{keys: make(map[string]string)}
}

func (s *memKeyStore) CurrentKey(scope string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[scope]
	return key, ok, nil
}

func (s *memKeyStore) SaveKey(scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[scope] = key
	return nil
}

func (s *memKeyStore) ClearKey(scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, scope)
	return nil
}

type fixture struct {
	machine *Machine
	gateway *fakeGateway
	keys    *memKeyStore
	ledger  *fakeLedger
	pending *fakePending
}

func newFixture(gw *fakeGateway, balance string) *fixture {
	return newFixtureWithDelay(gw, balance, time.Millisecond)
}

func newFixtureWithDelay(gw *fakeGateway, balance string, delay time.Duration) *fixture {
	keys := newMemKeyStore()
	ledger := &fakeLedger{}
	pending := &fakePending{}
	accounts := &fakeAccounts{account: domain.Account{
		ID:       "acc-1",
		Number:   "11112222",
		Type:     "SAVINGS",
		Balance:  decimal.RequireFromString(balance),
		Currency: "USD",
	}}
	m := NewMachine("transfer-1",
		idempotency.NewManager(keys),
		NewSubmitter(gw, zap.NewNop()),
		NewPoller(gw, delay, 10, zap.NewNop()),
		ledger, accounts, pending, zap.NewNop())
	return &fixture{machine: m, gateway: gw, keys: keys, ledger: ledger, pending: pending}
}

func validRequest(amount string) domain.TransferRequest {
	return domain.TransferRequest{
		SourceAccountID:          "acc-1",
		SourceHolderName:         "Maria Lopez",
		DestinationAccountNumber: "99887766",
		DestinationBankID:        "NEXUS_BANK",
		BeneficiaryName:          "Juan Perez",
		Amount:                   decimal.RequireFromString(amount),
		Channel:                  domain.ChannelWeb,
		Description:              "September rent",
	}
}

func acceptedSubmission() switchclient.SubmitResult {
	return switchclient.SubmitResult{Accepted: true, InstructionRef: "ins-1", RawStatus: "PENDIENTE"}
}

func TestConfirmInsufficientFundsNeverReachesNetwork(t *testing.T) {
	gw := &fakeGateway{submitResult: acceptedSubmission()}
	fx := newFixture(gw, "100.00")

	_, err := fx.machine.Confirm(context.Background(), validRequest("150.00"))
	require.Error(t, err)
	require.True(t, IsValidation(err))
	require.Contains(t, err.Error(), "exceeds available balance")

	require.Empty(t, gw.submissions())
	require.Zero(t, gw.pollCount())
	require.Equal(t, domain.StateIdle, fx.machine.Snapshot().State)
}

func TestConfirmCompletesAfterThreePolls(t *testing.T) {
	gw := &fakeGateway{
		submitResult: acceptedSubmission(),
		pollScript: []pollStep{
			{result: domain.PollResult{RawStatus: "PENDIENTE"}},
			{result: domain.PollResult{RawStatus: "PENDIENTE"}},
			{result: domain.PollResult{RawStatus: "COMPLETADA"}},
		},
	}
	fx := newFixture(gw, "500.00")

	snap, err := fx.machine.Confirm(context.Background(), validRequest("120.50"))
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, snap.State)
	require.NotNil(t, snap.Outcome)
	require.Equal(t, domain.OutcomeSuccess, snap.Outcome.Kind)

	require.Equal(t, 3, gw.pollCount())
	require.Equal(t, 1, fx.ledger.count())

	rec := fx.ledger.applied[0]
	require.Equal(t, "acc-1", rec.AccountID)
	require.True(t, rec.SignedAmount.Equal(decimal.RequireFromString("-120.50")))
	require.Equal(t, domain.TxTypeTransferOut, rec.Type)
	require.Equal(t, "ins-1", rec.InstructionRef)

	_, found, err := fx.keys.CurrentKey("transfer-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestConfirmTimesOutAfterFullBudget(t *testing.T) {
	gw := &fakeGateway{submitResult: acceptedSubmission()}
	fx := newFixture(gw, "500.00")

	snap, err := fx.machine.Confirm(context.Background(), validRequest("50.00"))
	require.NoError(t, err)
	require.Equal(t, domain.StateTimeoutPending, snap.State)
	require.NotNil(t, snap.Outcome)
	require.Equal(t, domain.OutcomeTimeoutPending, snap.Outcome.Kind)
	require.Equal(t, classifier.MsgStillProcessing, snap.Outcome.UserMessage)

	require.Equal(t, 10, gw.pollCount())
	require.Zero(t, fx.ledger.count())
	require.Equal(t, 1, fx.pending.count())
	require.Equal(t, "ins-1", fx.pending.saved[0].InstructionRef)

	_, found, err := fx.keys.CurrentKey("transfer-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestConfirmImmediateRejectionSkipsPolling(t *testing.T) {
	gw := &fakeGateway{
		submitResult: switchclient.SubmitResult{
			Accepted: false,
			Code:     classifier.CodeInsufficientFunds,
			Message:  "AM04 saldo insuficiente",
		},
	}
	fx := newFixture(gw, "500.00")

	snap, err := fx.machine.Confirm(context.Background(), validRequest("50.00"))
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, snap.State)
	require.NotNil(t, snap.Outcome)
	require.Equal(t, domain.OutcomeRejected, snap.Outcome.Kind)
	require.Equal(t, classifier.MsgInsufficientFunds, snap.Outcome.UserMessage)

	require.Zero(t, gw.pollCount())
	require.Zero(t, fx.ledger.count())
}

func TestConfirmToleratesTransientPollFailures(t *testing.T) {
	transportErr := errors.New("switch status endpoint returned 503")
	gw := &fakeGateway{
		submitResult: acceptedSubmission(),
		pollScript: []pollStep{
			{err: transportErr},
			{err: transportErr},
			{err: transportErr},
			{err: transportErr},
			{result: domain.PollResult{RawStatus: "COMPLETADA"}},
		},
	}
	fx := newFixture(gw, "500.00")

	snap, err := fx.machine.Confirm(context.Background(), validRequest("75.00"))
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, snap.State)
	require.Equal(t, 5, gw.pollCount())
	require.Equal(t, 1, fx.ledger.count())
}

func TestSubmissionTransportErrorKeepsKeyForRetry(t *testing.T) {
	gw := &fakeGateway{submitErr: errors.New("connection refused")}
	fx := newFixture(gw, "500.00")

	snap, err := fx.machine.Confirm(context.Background(), validRequest("50.00"))
	require.NoError(t, err)
	require.Equal(t, domain.StateFailed, snap.State)
	require.NotNil(t, snap.Outcome)
	require.Equal(t, domain.OutcomeCommunicationError, snap.Outcome.Kind)

	firstKey, found, err := fx.keys.CurrentKey("transfer-1")
	require.NoError(t, err)
	require.True(t, found)

	gw.mu.Lock()
	gw.submitErr = nil
	gw.submitResult = acceptedSubmission()
	gw.pollScript = []pollStep{{result: domain.PollResult{RawStatus: "COMPLETADA"}}}
	gw.mu.Unlock()

	require.NoError(t, fx.machine.RetryAttempt())
	snap, err = fx.machine.Confirm(context.Background(), validRequest("50.00"))
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, snap.State)

	subs := gw.submissions()
	require.Len(t, subs, 1)
	require.Equal(t, firstKey, subs[0].IdempotencyKey)
}

func TestRetryAfterRejectionIssuesFreshKey(t *testing.T) {
	gw := &fakeGateway{
		submitResult: switchclient.SubmitResult{Accepted: false, Code: classifier.CodeDuplicateOperation},
	}
	fx := newFixture(gw, "500.00")

	snap, err := fx.machine.Confirm(context.Background(), validRequest("50.00"))
	require.NoError(t, err)
	require.Equal(t, domain.StateRejected, snap.State)

	gw.mu.Lock()
	gw.submitResult = acceptedSubmission()
	gw.pollScript = []pollStep{{result: domain.PollResult{RawStatus: "COMPLETADA"}}}
	gw.mu.Unlock()

	require.NoError(t, fx.machine.RetryAttempt())
	snap, err = fx.machine.Confirm(context.Background(), validRequest("50.00"))
	require.NoError(t, err)
	require.Equal(t, domain.StateCompleted, snap.State)

	subs := gw.submissions()
	require.Len(t, subs, 2)
	require.NotEqual(t, subs[0].IdempotencyKey, subs[1].IdempotencyKey)
}

func TestConfirmOutsideIdleIsRejected(t *testing.T) {
	gw := &fakeGateway{
		submitResult: acceptedSubmission(),
		pollScript:   []pollStep{{result: domain.PollResult{RawStatus: "COMPLETADA"}}},
	}
	fx := newFixture(gw, "500.00")

	_, err := fx.machine.Confirm(context.Background(), validRequest("50.00"))
	require.NoError(t, err)

	_, err = fx.machine.Confirm(context.Background(), validRequest("50.00"))
	require.ErrorIs(t, err, ErrNotIdle)
}

func TestCancelDuringPollingHandsOffToSweeper(t *testing.T) {
	gw := &fakeGateway{submitResult: acceptedSubmission()}
	fx := newFixtureWithDelay(gw, "500.00", 50*time.Millisecond)

	type result struct {
		snap Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := fx.machine.Confirm(context.Background(), validRequest("50.00"))
		done <- result{snap: snap, err: err}
	}()

	require.Eventually(t, func() bool {
		return gw.pollCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	fx.machine.Cancel()

	res := <-done
	require.NoError(t, res.err)
	snap := res.snap
	require.Equal(t, domain.StateTimeoutPending, snap.State)
	require.Less(t, gw.pollCount(), 10)
	require.Zero(t, fx.ledger.count())
	require.Equal(t, 1, fx.pending.count())
}

func TestValidateRejectsNonNumericDestination(t *testing.T) {
	gw := &fakeGateway{}
	fx := newFixture(gw, "500.00")

	req := validRequest("50.00")
	req.DestinationAccountNumber = "ABC12345"
	_, err := fx.machine.Confirm(context.Background(), req)
	require.True(t, IsValidation(err))
	require.Empty(t, gw.submissions())
	require.Equal(t, domain.StateIdle, fx.machine.Snapshot().State)
}
