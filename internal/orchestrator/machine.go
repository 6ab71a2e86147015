// Package orchestrator sequences one interbank transfer attempt: precondition
// validation, idempotent submission, bounded status polling and the optimistic
// local ledger update on confirmed completion. One Machine owns one attempt
// scope; its state is the read model the presentation layer renders.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/classifier"
	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
	"github.com/bantec-cbs/interbank-orchestrator/internal/idempotency"
	"github.com/bantec-cbs/interbank-orchestrator/internal/observability"
	"github.com/bantec-cbs/interbank-orchestrator/internal/store"
)

// ErrNotIdle is returned when Confirm is called while an attempt is already
// in flight or finished. This is a caller bug, not a recoverable condition.
var ErrNotIdle = errors.New("transfer attempt already in progress")

// attemptTransitions is the legal state graph of one attempt. REJECTED,
// COMPLETED, FAILED and TIMEOUT_PENDING are terminal; only REJECTED and
// FAILED allow a return to IDLE via RetryAttempt. A TIMEOUT_PENDING attempt
// is finished for the machine: resubmitting it would risk a double movement,
// so settlement is left to the background sweeper.
var attemptTransitions = map[string]map[string]struct{}{
	domain.StateIdle: {
		domain.StateSubmitting: {},
	},
	domain.StateSubmitting: {
		domain.StateIdle:     {},
		domain.StatePolling:  {},
		domain.StateRejected: {},
		domain.StateFailed:   {},
	},
	domain.StatePolling: {
		domain.StateCompleted:      {},
		domain.StateFailed:         {},
		domain.StateTimeoutPending: {},
	},
	domain.StateRejected:       {domain.StateIdle: {}},
	domain.StateFailed:         {domain.StateIdle: {}},
	domain.StateTimeoutPending: {},
	domain.StateCompleted:      {},
}

// Ledger applies the optimistic local update once completion is confirmed.
type Ledger interface {
	Apply(rec domain.LocalTransactionRecord) error
}

// AccountReader resolves the cached source account at validation time.
type AccountReader interface {
	Balance(accountID string) (domain.Account, error)
}

// PendingRecorder remembers instructions whose settlement outlived the
// polling budget so the sweeper can finish the reconciliation out-of-band.
type PendingRecorder interface {
	SavePending(p store.PendingInstruction) error
}

// Snapshot is the {state, statusMessage, outcome} tuple read by callers.
type Snapshot struct {
	State          string          `json:"state"`
	StatusMessage  string          `json:"status_message,omitempty"`
	InstructionRef string          `json:"instruction_ref,omitempty"`
	Outcome        *domain.Outcome `json:"outcome,omitempty"`
}

// Machine owns the lifecycle of one logical transfer attempt.
type Machine struct {
	scope     string
	keys      *idempotency.Manager
	submitter *Submitter
	poller    *Poller
	ledger    Ledger
	accounts  AccountReader
	pending   PendingRecorder
	logger    *zap.Logger

	mu             sync.Mutex
	state          string
	statusMessage  string
	outcome        *domain.Outcome
	req            domain.TransferRequest
	instructionRef string
	cancelPoll     context.CancelFunc
}

func NewMachine(scope string, keys *idempotency.Manager, submitter *Submitter, poller *Poller, ledger Ledger, accounts AccountReader, pending PendingRecorder, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		scope:     scope,
		keys:      keys,
		submitter: submitter,
		poller:    poller,
		ledger:    ledger,
		accounts:  accounts,
		pending:   pending,
		logger:    logger,
		state:     domain.StateIdle,
	}
}

// Confirm runs the attempt to its terminal state: validate, ensure the
// idempotency key, submit once, then poll until terminal or budget
// exhaustion. It returns the terminal snapshot. Validation failures return
// the machine to IDLE without consuming the key or touching the network.
func (m *Machine) Confirm(ctx context.Context, req domain.TransferRequest) (Snapshot, error) {
	m.mu.Lock()
	if m.state != domain.StateIdle {
		m.mu.Unlock()
		return Snapshot{}, ErrNotIdle
	}
	m.state = domain.StateSubmitting
	m.statusMessage = "Validating transfer"
	m.outcome = nil
	m.req = req
	m.mu.Unlock()

	source, err := m.accounts.Balance(req.SourceAccountID)
	if err != nil {
		m.revertToIdle()
		return m.Snapshot(), &ValidationError{Reason: "unknown source account"}
	}
	if err := m.submitter.Validate(req, source); err != nil {
		m.revertToIdle()
		return m.Snapshot(), err
	}

	key, err := m.keys.EnsureKey(m.scope)
	if err != nil {
		m.revertToIdle()
		return m.Snapshot(), fmt.Errorf("ensure idempotency key: %w", err)
	}
	req.IdempotencyKey = key

	m.setMessage("Submitting transfer")
	acc, err := m.submitter.Submit(ctx, req, source)
	if err != nil {
		// The instruction may or may not have reached the switch. The key is
		// kept so a retry of the same attempt cannot duplicate the movement.
		m.logger.Warn("transfer submission failed",
			zap.String("scope", m.scope),
			zap.Error(err))
		out := domain.Outcome{
			Kind:            domain.OutcomeCommunicationError,
			UserMessage:     classifier.MsgCommunicationError,
			TechnicalDetail: err.Error(),
		}
		return m.finish(domain.StateFailed, out, false), nil
	}
	if !acc.Accepted {
		return m.finish(domain.StateRejected, acc.Outcome, true), nil
	}

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	m.state = domain.StatePolling
	m.statusMessage = "Waiting for interbank confirmation"
	m.instructionRef = acc.InstructionRef
	m.cancelPoll = cancel
	m.mu.Unlock()

	out, err := m.poller.PollUntilTerminal(pollCtx, acc.InstructionRef)
	if err != nil {
		// Canceled mid-poll. The instruction may still settle on the switch,
		// so it is handed to the sweeper and the ledger stays untouched here.
		m.recordPending(acc.InstructionRef)
		abandoned := domain.Outcome{
			Kind:            domain.OutcomeTimeoutPending,
			UserMessage:     classifier.MsgStillProcessing,
			TechnicalDetail: err.Error(),
		}
		return m.finish(domain.StateTimeoutPending, abandoned, true), nil
	}

	switch out.Kind {
	case domain.OutcomeSuccess:
		if err := m.ledger.Apply(m.record(acc.InstructionRef)); err != nil {
			m.logger.Error("local ledger update failed",
				zap.String("instruction_ref", acc.InstructionRef),
				zap.Error(err))
		}
		return m.finish(domain.StateCompleted, out, true), nil
	case domain.OutcomeTimeoutPending:
		m.recordPending(acc.InstructionRef)
		return m.finish(domain.StateTimeoutPending, out, true), nil
	default:
		return m.finish(domain.StateFailed, out, true), nil
	}
}

// RetryAttempt returns a rejected or failed machine to IDLE so a new
// confirmation can run. After a business rejection the key was already
// cleared, so the next attempt is issued a fresh one; after a communication
// error the key survives and is reused verbatim.
func (m *Machine) RetryAttempt() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := attemptTransitions[m.state][domain.StateIdle]; !ok {
		return fmt.Errorf("cannot retry from state %s", m.state)
	}
	m.state = domain.StateIdle
	m.statusMessage = ""
	m.outcome = nil
	m.instructionRef = ""
	return nil
}

// Cancel stops an in-flight poll between attempts. The abandoned instruction
// is recorded for the sweeper; the machine never applies its ledger update.
func (m *Machine) Cancel() {
	m.mu.Lock()
	cancel := m.cancelPoll
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns the current read model.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		State:          m.state,
		StatusMessage:  m.statusMessage,
		InstructionRef: m.instructionRef,
	}
	if m.outcome != nil {
		out := *m.outcome
		snap.Outcome = &out
	}
	return snap
}

// Request returns the last confirmed request, for retry callers.
func (m *Machine) Request() domain.TransferRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.req
}

func (m *Machine) finish(state string, out domain.Outcome, clearKey bool) Snapshot {
	m.mu.Lock()
	if _, ok := attemptTransitions[m.state][state]; !ok {
		m.logger.Error("illegal attempt state transition",
			zap.String("from", m.state),
			zap.String("to", state))
	}
	m.state = state
	m.statusMessage = out.UserMessage
	o := out
	m.outcome = &o
	m.cancelPoll = nil
	m.mu.Unlock()

	if clearKey {
		if err := m.keys.Clear(m.scope); err != nil {
			m.logger.Error("clear idempotency key failed",
				zap.String("scope", m.scope),
				zap.Error(err))
		}
	}
	observability.IncrementOutcome(out.Kind)
	return m.Snapshot()
}

func (m *Machine) revertToIdle() {
	m.mu.Lock()
	m.state = domain.StateIdle
	m.statusMessage = ""
	m.mu.Unlock()
}

func (m *Machine) setMessage(msg string) {
	m.mu.Lock()
	m.statusMessage = msg
	m.mu.Unlock()
}

func (m *Machine) record(instructionRef string) domain.LocalTransactionRecord {
	m.mu.Lock()
	req := m.req
	m.mu.Unlock()

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Transfer to %s", req.BeneficiaryName)
	}
	return domain.LocalTransactionRecord{
		AccountID:      req.SourceAccountID,
		SignedAmount:   req.Amount.Neg(),
		Type:           domain.TxTypeTransferOut,
		Description:    description,
		Timestamp:      time.Now().UTC(),
		InstructionRef: instructionRef,
	}
}

func (m *Machine) recordPending(instructionRef string) {
	p := store.PendingInstruction{
		InstructionRef: instructionRef,
		Record:         m.record(instructionRef),
		FirstObserved:  time.Now().UTC(),
	}
	if err := m.pending.SavePending(p); err != nil {
		m.logger.Error("save pending instruction failed",
			zap.String("instruction_ref", instructionRef),
			zap.Error(err))
	}
}
