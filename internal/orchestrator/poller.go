package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/classifier"
	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
	"github.com/bantec-cbs/interbank-orchestrator/internal/observability"
	"github.com/bantec-cbs/interbank-orchestrator/internal/switchclient"
)

const (
	defaultPollDelay  = 1500 * time.Millisecond
	defaultPollBudget = 10
)

// Poller drives bounded status polling against the switch. The budget is a
// fast path only: the switch may settle long after the budget runs out, so
// exhaustion yields TIMEOUT_PENDING, never an error.
type Poller struct {
	gateway switchclient.Gateway
	delay   time.Duration
	budget  int
	logger  *zap.Logger
}

func NewPoller(gateway switchclient.Gateway, delay time.Duration, budget int, logger *zap.Logger) *Poller {
	if delay <= 0 {
		delay = defaultPollDelay
	}
	if budget <= 0 {
		budget = defaultPollBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{gateway: gateway, delay: delay, budget: budget, logger: logger}
}

// PollUntilTerminal queries the instruction status once per attempt, sleeping
// the fixed delay between attempts, until a terminal status is observed or the
// budget is exhausted. A transport or not-found error on an individual poll
// consumes the attempt without ending the loop. Cancellation is honored
// between attempts; a canceled poll returns ctx.Err() and no outcome.
func (p *Poller) PollUntilTerminal(ctx context.Context, instructionRef string) (domain.Outcome, error) {
	for attempt := 1; attempt <= p.budget; attempt++ {
		pr, err := p.gateway.TransferStatus(ctx, instructionRef)
		if err != nil {
			p.logger.Warn("status poll failed",
				zap.String("instruction_ref", instructionRef),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else if out, terminal := terminalOutcome(pr); terminal {
			observability.ObservePollAttempts(attempt)
			return out, nil
		}

		if attempt == p.budget {
			break
		}
		select {
		case <-ctx.Done():
			return domain.Outcome{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}

	observability.ObservePollAttempts(p.budget)
	return domain.Outcome{
		Kind:        domain.OutcomeTimeoutPending,
		UserMessage: classifier.MsgStillProcessing,
	}, nil
}

// terminalOutcome classifies one observation and reports whether it ends the
// attempt. An unrecognized status without a known business code keeps the
// loop running; only an explicit success or failure signal is terminal.
func terminalOutcome(pr domain.PollResult) (domain.Outcome, bool) {
	out := classifier.Classify(classifier.FromPollResult(pr))
	switch out.Kind {
	case domain.OutcomeSuccess:
		return out, true
	case domain.OutcomeFailed:
		if out.Code != "" || classifier.NormalizeStatus(pr.RawStatus) == domain.PollFailed {
			return out, true
		}
	}
	return domain.Outcome{}, false
}
