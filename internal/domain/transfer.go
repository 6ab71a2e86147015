package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Attempt states. REJECTED, COMPLETED, FAILED and TIMEOUT_PENDING are
// terminal: the attempt cannot leave them without an explicit new attempt.
const (
	StateIdle           = "IDLE"
	StateSubmitting     = "SUBMITTING"
	StatePolling        = "POLLING"
	StateRejected       = "REJECTED"
	StateCompleted      = "COMPLETED"
	StateFailed         = "FAILED"
	StateTimeoutPending = "TIMEOUT_PENDING"
)

// IsTerminalState reports whether an attempt in the given state is finished.
func IsTerminalState(state string) bool {
	switch state {
	case StateRejected, StateCompleted, StateFailed, StateTimeoutPending:
		return true
	}
	return false
}

// Normalized poll statuses.
const (
	PollCompleted = "COMPLETED"
	PollFailed    = "FAILED"
	PollPending   = "PENDING"
)

// Outcome kinds.
const (
	OutcomeSuccess            = "SUCCESS"
	OutcomeRejected           = "REJECTED"
	OutcomeFailed             = "FAILED"
	OutcomeTimeoutPending     = "TIMEOUT_PENDING"
	OutcomeCommunicationError = "COMMUNICATION_ERROR"
)

// Channels and local record types.
const (
	ChannelWeb    = "WEB"
	ChannelBranch = "BRANCH"

	TxTypeTransferOut = "TRANSFER_OUT"
)

// TransferRequest carries the parameters of one logical interbank transfer
// attempt. IdempotencyKey is immutable once assigned.
type TransferRequest struct {
	SourceAccountID          string          `json:"source_account_id"`
	SourceHolderName         string          `json:"source_holder_name,omitempty"`
	DestinationAccountNumber string          `json:"destination_account_number"`
	DestinationBankID        string          `json:"destination_bank_id"`
	BeneficiaryName          string          `json:"beneficiary_name"`
	Amount                   decimal.Decimal `json:"amount"`
	Channel                  string          `json:"channel"`
	Description              string          `json:"description"`
	IdempotencyKey           string          `json:"idempotency_key,omitempty"`
}

// PollResult is one raw status observation from the switch, before
// classification.
type PollResult struct {
	RawStatus  string
	RawCode    string
	RawMessage string
}

// Outcome is the classified, user-presentable result of a signal or of a
// whole attempt. UserMessage comes from a fixed vocabulary; TechnicalDetail
// is for logs only and must never be rendered.
type Outcome struct {
	Kind            string `json:"kind"`
	Code            string `json:"code,omitempty"`
	UserMessage     string `json:"user_message"`
	TechnicalDetail string `json:"-"`
}

// LocalTransactionRecord is the optimistic history entry written once a
// transfer is confirmed COMPLETED. It is superseded by the next authoritative
// refresh.
type LocalTransactionRecord struct {
	AccountID      string          `json:"account_id"`
	SignedAmount   decimal.Decimal `json:"signed_amount"`
	Type           string          `json:"type"`
	Description    string          `json:"description"`
	Timestamp      time.Time       `json:"timestamp"`
	InstructionRef string          `json:"instruction_ref"`
}

// Account is the cached view of a customer account.
type Account struct {
	ID       string          `json:"id"`
	Number   string          `json:"number"`
	Type     string          `json:"type"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// Bank is one entry of the switch's registered-bank directory.
type Bank struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
	BIN  string `json:"bin,omitempty"`
}
