package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
	"github.com/bantec-cbs/interbank-orchestrator/internal/observability"
	"github.com/bantec-cbs/interbank-orchestrator/internal/orchestrator"
)

// TransferHandler exposes the attempt lifecycle: confirm, inspect, retry and
// cancel. Confirmation blocks until the attempt reaches a terminal state, so
// the response always carries a settled snapshot. Because that block spans
// the whole polling budget, clients are expected to time out and re-send;
// the Idempotency-Key header binds every re-send to the original attempt.
type TransferHandler struct {
	registry *orchestrator.Registry
	logger   *zap.Logger
}

func NewTransferHandler(registry *orchestrator.Registry, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{registry: registry, logger: logger}
}

type transferPayload struct {
	SourceAccountID          string `json:"source_account_id"`
	SourceHolderName         string `json:"source_holder_name"`
	DestinationAccountNumber string `json:"destination_account_number"`
	DestinationBankID        string `json:"destination_bank_id"`
	BeneficiaryName          string `json:"beneficiary_name"`
	Amount                   string `json:"amount"`
	Channel                  string `json:"channel"`
	Description              string `json:"description"`
}

type transferResponse struct {
	TransferID string `json:"transfer_id"`
	orchestrator.Snapshot
}

// SubmitTransfer confirms a transfer and runs it to its terminal state. A
// repeated POST carrying the same Idempotency-Key and body returns the
// existing attempt's snapshot without touching the switch again; the same
// key with a different body is a conflict.
func (h *TransferHandler) SubmitTransfer(w http.ResponseWriter, r *http.Request) {
	clientKey := r.Header.Get("Idempotency-Key")
	if clientKey == "" {
		observability.IncrementIdempotencyEvent("missing_key")
		RespondError(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "transfer/invalid-body", "failed to read request body")
		return
	}

	var payload transferPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		RespondError(w, r, http.StatusBadRequest, "transfer/invalid-body", "invalid request body")
		return
	}

	amount, err := domain.ParseAmount(payload.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "transfer/validation", err.Error())
		return
	}

	channel := payload.Channel
	if channel == "" {
		channel = domain.ChannelWeb
	}

	req := domain.TransferRequest{
		SourceAccountID:          payload.SourceAccountID,
		SourceHolderName:         payload.SourceHolderName,
		DestinationAccountNumber: payload.DestinationAccountNumber,
		DestinationBankID:        payload.DestinationBankID,
		BeneficiaryName:          payload.BeneficiaryName,
		Amount:                   amount,
		Channel:                  channel,
		Description:              payload.Description,
	}

	id, machine, existed, err := h.registry.CreateOrGet(clientKey, fingerprint(r.Method, r.URL.Path, body))
	if errors.Is(err, orchestrator.ErrKeyConflict) {
		observability.IncrementIdempotencyEvent("key_conflict")
		RespondError(w, r, http.StatusConflict, "idempotency/key-conflict", err.Error())
		return
	}
	if existed {
		observability.IncrementIdempotencyEvent("replay")
		RespondJSON(w, http.StatusOK, transferResponse{TransferID: id, Snapshot: machine.Snapshot()})
		return
	}

	snap, err := machine.Confirm(r.Context(), req)
	if err != nil {
		if orchestrator.IsValidation(err) {
			// No network effect happened, so the key may be reused
			// with a corrected request.
			h.registry.Release(id)
		}
		h.writeConfirmError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, transferResponse{TransferID: id, Snapshot: snap})
}

// GetTransfer returns the current attempt snapshot.
func (h *TransferHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	machine, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		RespondError(w, r, http.StatusNotFound, "transfer/not-found", "unknown transfer id")
		return
	}
	RespondJSON(w, http.StatusOK, transferResponse{
		TransferID: chi.URLParam(r, "id"),
		Snapshot:   machine.Snapshot(),
	})
}

// RetryTransfer re-runs a rejected or failed attempt. A business rejection
// gets a fresh idempotency key; a communication failure reuses the old one.
func (h *TransferHandler) RetryTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	machine, ok := h.registry.Get(id)
	if !ok {
		RespondError(w, r, http.StatusNotFound, "transfer/not-found", "unknown transfer id")
		return
	}

	if err := machine.RetryAttempt(); err != nil {
		RespondError(w, r, http.StatusConflict, "transfer/invalid-state", err.Error())
		return
	}

	snap, err := machine.Confirm(r.Context(), machine.Request())
	if err != nil {
		h.writeConfirmError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, transferResponse{TransferID: id, Snapshot: snap})
}

// CancelTransfer stops an in-flight poll. Settlement continues out-of-band.
func (h *TransferHandler) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	machine, ok := h.registry.Get(id)
	if !ok {
		RespondError(w, r, http.StatusNotFound, "transfer/not-found", "unknown transfer id")
		return
	}
	machine.Cancel()
	RespondJSON(w, http.StatusAccepted, transferResponse{TransferID: id, Snapshot: machine.Snapshot()})
}

func (h *TransferHandler) writeConfirmError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case orchestrator.IsValidation(err):
		RespondError(w, r, http.StatusBadRequest, "transfer/validation", err.Error())
	case errors.Is(err, orchestrator.ErrNotIdle):
		RespondError(w, r, http.StatusConflict, "transfer/invalid-state", err.Error())
	default:
		h.logger.Error("transfer confirmation failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "transfer/internal", "transfer confirmation failed")
	}
}

// fingerprint pins an idempotency key to the exact request it first covered.
func fingerprint(method, path string, body []byte) string {
	sum := sha256.Sum256(append([]byte(method+"|"+path+"|"), body...))
	return hex.EncodeToString(sum[:])
}
