package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/ledger"
	"github.com/bantec-cbs/interbank-orchestrator/internal/store"
)

// AccountHandler serves the cached account view. Balances come from the local
// cache; ?refresh=true forces an authoritative read first.
type AccountHandler struct {
	local  *store.Local
	ledger *ledger.Sync
	logger *zap.Logger
}

func NewAccountHandler(local *store.Local, ledgerSync *ledger.Sync, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{local: local, ledger: ledgerSync, logger: logger}
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := h.ledger.Refresh(r.Context()); err != nil {
			h.logger.Warn("authoritative account refresh failed", zap.Error(err))
			RespondError(w, r, http.StatusBadGateway, "accounts/upstream", "account service unavailable")
			return
		}
	}

	accounts, err := h.local.Balances()
	if err != nil {
		h.logger.Error("load cached balances failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "accounts/storage", "cannot load accounts")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (h *AccountHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	movements, err := h.local.History(accountID)
	if err != nil {
		h.logger.Error("load local history failed", zap.String("account_id", accountID), zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "accounts/storage", "cannot load history")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"movements": movements})
}
