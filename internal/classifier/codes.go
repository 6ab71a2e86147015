package classifier

import "github.com/bantec-cbs/interbank-orchestrator/internal/domain"

// Business codes the switch is known to emit, ISO 20022 style. The table is
// fixed and reviewed: user-facing text never comes from the wire.
const (
	CodeSuccess             = "AC00"
	CodeAccountNotFound     = "AC01"
	CodeAccountClosed       = "AC04"
	CodeAccountBlocked      = "AC06"
	CodeInsufficientFunds   = "AM04"
	CodeDuplicateOperation  = "AM05"
	CodeUpstreamTechnical   = "MS03"
	CodeNotPermitted        = "AG01"
	CodeBeneficiaryMismatch = "BE01"
	CodeInvalidData         = "RC01"
	CodeAmountOverLimit     = "CH03"
)

// Fixed user-facing vocabulary.
const (
	MsgSuccess             = "Transfer completed successfully."
	MsgAccountNotFound     = "The destination account or bank does not exist. Please verify it."
	MsgAccountClosed       = "The destination account is closed or inactive."
	MsgAccountBlocked      = "The destination account is blocked."
	MsgInsufficientFunds   = "Insufficient funds for this operation."
	MsgDuplicateOperation  = "This transfer was already processed."
	MsgUpstreamTechnical   = "There was a problem communicating with the destination bank. Try again in a few minutes."
	MsgNotPermitted        = "Operation not permitted: the institution is in receive-only mode."
	MsgBeneficiaryMismatch = "The beneficiary details do not match. For your safety the transfer was not processed."
	MsgInvalidData         = "The request contains invalid data. Please contact support."
	MsgAmountOverLimit     = "The amount exceeds the allowed transfer limit."

	MsgGenericFailure     = "The transfer could not be completed. Please try again later."
	MsgCommunicationError = "A communication error occurred. Please check the transfer status in a few minutes."
	MsgStillProcessing    = "Your transfer is still being processed by the interbank network. It will be confirmed within 24 hours."
)

type codeEntry struct {
	kind    string
	message string
}

var codeTable = map[string]codeEntry{
	CodeSuccess:             {kind: domain.OutcomeSuccess, message: MsgSuccess},
	CodeAccountNotFound:     {kind: domain.OutcomeFailed, message: MsgAccountNotFound},
	CodeAccountClosed:       {kind: domain.OutcomeFailed, message: MsgAccountClosed},
	CodeAccountBlocked:      {kind: domain.OutcomeFailed, message: MsgAccountBlocked},
	CodeInsufficientFunds:   {kind: domain.OutcomeFailed, message: MsgInsufficientFunds},
	CodeDuplicateOperation:  {kind: domain.OutcomeFailed, message: MsgDuplicateOperation},
	CodeUpstreamTechnical:   {kind: domain.OutcomeFailed, message: MsgUpstreamTechnical},
	CodeNotPermitted:        {kind: domain.OutcomeFailed, message: MsgNotPermitted},
	CodeBeneficiaryMismatch: {kind: domain.OutcomeFailed, message: MsgBeneficiaryMismatch},
	CodeInvalidData:         {kind: domain.OutcomeFailed, message: MsgInvalidData},
	CodeAmountOverLimit:     {kind: domain.OutcomeFailed, message: MsgAmountOverLimit},
}

// Status vocabulary across the variants the gateway emits (the switch answers
// in Spanish, the proxy sometimes in English).
var (
	successStatuses = map[string]struct{}{
		"COMPLETED":  {},
		"COMPLETADA": {},
		"EXITOSA":    {},
		"SUCCESS":    {},
		"ACSC":       {},
	}
	failureStatuses = map[string]struct{}{
		"FAILED":    {},
		"FALLIDA":   {},
		"RECHAZADA": {},
		"REJECTED":  {},
		"DEVUELTA":  {},
		"RJCT":      {},
	}
	pendingStatuses = map[string]struct{}{
		"PENDING":     {},
		"PENDIENTE":   {},
		"PROCESSING":  {},
		"EN_PROCESO":  {},
		"IN_PROGRESS": {},
		"ACSP":        {},
		"ACCEPTED":    {},
	}
)
