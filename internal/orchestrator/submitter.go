package orchestrator

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/classifier"
	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
	"github.com/bantec-cbs/interbank-orchestrator/internal/observability"
	"github.com/bantec-cbs/interbank-orchestrator/internal/switchclient"
)

// ValidationError is a client-side precondition failure. It is raised before
// any network call and is never retried automatically.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// IsValidation reports whether err is a precondition failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

const minAccountDigits = 6

// Submitter validates a transfer request and performs the single synchronous
// submission call for an attempt.
type Submitter struct {
	gateway switchclient.Gateway
	logger  *zap.Logger
}

func NewSubmitter(gateway switchclient.Gateway, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{gateway: gateway, logger: logger}
}

// Acceptance is the normalized submission result. When Accepted is false the
// switch rejected the instruction synchronously and Outcome carries the
// classified reason; polling must not start.
type Acceptance struct {
	Accepted       bool
	InstructionRef string
	Outcome        domain.Outcome
}

// Validate checks all submission preconditions against the cached source
// account. It fails fast, before any network I/O.
func (s *Submitter) Validate(req domain.TransferRequest, source domain.Account) error {
	dest := strings.TrimSpace(req.DestinationAccountNumber)
	if dest == "" {
		return &ValidationError{Reason: "destination account number is required"}
	}
	if !isNumeric(dest) {
		return &ValidationError{Reason: "destination account number must be numeric"}
	}
	if len(dest) < minAccountDigits {
		return &ValidationError{Reason: "destination account number is too short"}
	}
	if strings.TrimSpace(req.DestinationBankID) == "" {
		return &ValidationError{Reason: "destination bank is required"}
	}
	if strings.TrimSpace(req.BeneficiaryName) == "" {
		return &ValidationError{Reason: "beneficiary name is required"}
	}
	if dest == strings.TrimSpace(source.Number) {
		return &ValidationError{Reason: "source and destination accounts must differ"}
	}
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if err := domain.CheckFunds(req.Amount, source.Balance); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	return nil
}

// Submit issues the submission call. The idempotency key must already be set
// on the request; the switch deduplicates by it, so a transport-level retry
// with the same key cannot move money twice. A transport acceptance whose
// body carries a failure status is treated as a synchronous rejection.
func (s *Submitter) Submit(ctx context.Context, req domain.TransferRequest, source domain.Account) (Acceptance, error) {
	if err := s.Validate(req, source); err != nil {
		return Acceptance{}, err
	}
	if req.IdempotencyKey == "" {
		return Acceptance{}, errors.New("submit without idempotency key")
	}

	res, err := s.gateway.SubmitTransfer(ctx, switchclient.SubmitRequest{
		IdempotencyKey:     req.IdempotencyKey,
		SourceAccount:      source.Number,
		SourceHolderName:   req.SourceHolderName,
		DestinationAccount: req.DestinationAccountNumber,
		DestinationBankID:  req.DestinationBankID,
		BeneficiaryName:    req.BeneficiaryName,
		Amount:             req.Amount,
		Description:        req.Description,
	})
	if err != nil {
		observability.IncrementSubmission("error")
		return Acceptance{}, err
	}

	if !res.Accepted || classifier.NormalizeStatus(res.RawStatus) == domain.PollFailed {
		out := classifier.ClassifySubmission(classifier.Signal{
			Status:  res.RawStatus,
			Code:    res.Code,
			Message: res.Message,
		})
		observability.IncrementSubmission("rejected")
		s.logger.Info("transfer rejected at submission",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("code", out.Code))
		return Acceptance{Outcome: out}, nil
	}

	observability.IncrementSubmission("accepted")
	return Acceptance{Accepted: true, InstructionRef: res.InstructionRef}, nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
