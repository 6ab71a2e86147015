package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/switchclient"
)

// BankHandler serves the directory of banks registered on the switch network.
type BankHandler struct {
	directory switchclient.Directory
	logger    *zap.Logger
}

func NewBankHandler(directory switchclient.Directory, logger *zap.Logger) *BankHandler {
	return &BankHandler{directory: directory, logger: logger}
}

func (h *BankHandler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.directory.Banks(r.Context())
	if err != nil {
		h.logger.Warn("bank directory query failed, serving static list", zap.Error(err))
		banks = switchclient.RegisteredBanks()
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"banks": banks})
}
