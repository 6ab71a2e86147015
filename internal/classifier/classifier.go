// Package classifier maps the heterogeneous error signals coming back from
// the interbank switch (ISO-style business codes, free-text messages, raw
// transport errors) onto a closed set of user-facing outcomes. It performs no
// I/O.
package classifier

import (
	"regexp"
	"strings"

	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
)

// Signal is the typed input to classification. Any field may be empty.
type Signal struct {
	Status     string
	Code       string
	Message    string
	HTTPStatus int
}

// FromPollResult adapts a raw status observation into a Signal.
func FromPollResult(pr domain.PollResult) Signal {
	return Signal{Status: pr.RawStatus, Code: pr.RawCode, Message: pr.RawMessage}
}

// FromError adapts a transport-level error into a Signal.
func FromError(err error) Signal {
	if err == nil {
		return Signal{}
	}
	return Signal{Message: err.Error()}
}

var isoCodePattern = regexp.MustCompile(`\b([A-Z]{2}\d{2})\b`)

// maxUserMessageLen is the threshold beyond which a message is assumed to be
// a technical artifact rather than reviewed user copy.
const maxUserMessageLen = 160

// Classify resolves a signal to an Outcome. First match wins: business code
// table, then status vocabulary, then technical-artifact collapse, then a
// generic failure with the original message kept as technical detail.
func Classify(sig Signal) domain.Outcome {
	if code, entry, ok := lookupCode(sig); ok {
		return domain.Outcome{
			Kind:            entry.kind,
			Code:            code,
			UserMessage:     entry.message,
			TechnicalDetail: sig.Message,
		}
	}

	switch NormalizeStatus(sig.Status) {
	case domain.PollCompleted:
		return domain.Outcome{Kind: domain.OutcomeSuccess, UserMessage: MsgSuccess, TechnicalDetail: sig.Message}
	case domain.PollPending:
		return domain.Outcome{Kind: domain.OutcomeTimeoutPending, UserMessage: MsgStillProcessing, TechnicalDetail: sig.Message}
	case domain.PollFailed:
		return domain.Outcome{Kind: domain.OutcomeFailed, UserMessage: MsgGenericFailure, TechnicalDetail: sig.Message}
	}

	if looksTechnical(sig.Message) {
		return domain.Outcome{
			Kind:            domain.OutcomeCommunicationError,
			UserMessage:     MsgCommunicationError,
			TechnicalDetail: sig.Message,
		}
	}

	return domain.Outcome{
		Kind:            domain.OutcomeFailed,
		UserMessage:     MsgGenericFailure,
		TechnicalDetail: sig.Message,
	}
}

// ClassifySubmission classifies a synchronous rejection from the submission
// call. Failure outcomes are reported as REJECTED so the caller can tell a
// fail-fast rejection apart from an asynchronous failure.
func ClassifySubmission(sig Signal) domain.Outcome {
	out := Classify(sig)
	if out.Kind == domain.OutcomeFailed {
		out.Kind = domain.OutcomeRejected
	}
	return out
}

// NormalizeStatus maps a raw status string onto the COMPLETED/FAILED/PENDING
// vocabulary. It returns "" when the status is not recognized.
func NormalizeStatus(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if _, ok := successStatuses[s]; ok {
		return domain.PollCompleted
	}
	if _, ok := failureStatuses[s]; ok {
		return domain.PollFailed
	}
	if _, ok := pendingStatuses[s]; ok {
		return domain.PollPending
	}
	return ""
}

// lookupCode finds a known 4-character business code, trying the structured
// field first, then the message prefix, then anywhere in the message.
func lookupCode(sig Signal) (string, codeEntry, bool) {
	if code := strings.ToUpper(strings.TrimSpace(sig.Code)); code != "" {
		if entry, ok := codeTable[code]; ok {
			return code, entry, true
		}
	}

	msg := strings.TrimSpace(sig.Message)
	if len(msg) >= 4 {
		if entry, ok := codeTable[strings.ToUpper(msg[:4])]; ok {
			return strings.ToUpper(msg[:4]), entry, true
		}
	}
	if match := isoCodePattern.FindString(strings.ToUpper(msg)); match != "" {
		if entry, ok := codeTable[match]; ok {
			return match, entry, true
		}
	}
	return "", codeEntry{}, false
}

// looksTechnical reports whether a message is a raw transport artifact
// (JSON fragments, parser noise, oversized payloads) that must never be shown
// to a user.
func looksTechnical(msg string) bool {
	if msg == "" {
		return false
	}
	if strings.ContainsAny(msg, "{}") {
		return true
	}
	if strings.Contains(strings.ToLower(msg), "unexpected token") {
		return true
	}
	return len(msg) > maxUserMessageLen
}
