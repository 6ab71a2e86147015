// Package accounts fetches the authoritative balance/account list from the
// core accounts service. Its answer always overwrites the optimistic local
// cache.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
	"github.com/shopspring/decimal"
)

// Source is the collaborator contract the ledger consumes.
type Source interface {
	RefreshAccounts(ctx context.Context) ([]domain.Account, error)
}

// Client is the HTTP implementation of Source.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type accountPayload struct {
	ID       json.Number     `json:"idCuenta"`
	Number   string          `json:"numeroCuenta"`
	Type     string          `json:"tipoCuenta"`
	Balance  decimal.Decimal `json:"saldo"`
	Currency string          `json:"moneda"`
}

// RefreshAccounts fetches the up-to-date account list.
func (c *Client) RefreshAccounts(ctx context.Context) ([]domain.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/cuentas/ahorros", nil)
	if err != nil {
		return nil, fmt.Errorf("build accounts request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh accounts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("accounts endpoint returned %d", resp.StatusCode)
	}

	var payload []accountPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode accounts response: %w", err)
	}

	accounts := make([]domain.Account, 0, len(payload))
	for _, p := range payload {
		currency := p.Currency
		if currency == "" {
			currency = "USD"
		}
		accounts = append(accounts, domain.Account{
			ID:       p.ID.String(),
			Number:   p.Number,
			Type:     p.Type,
			Balance:  p.Balance,
			Currency: currency,
		})
	}
	return accounts, nil
}
