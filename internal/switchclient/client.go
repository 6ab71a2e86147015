// Package switchclient talks to the external interbank switch. The switch
// settles transfers asynchronously (its SLA allows up to 24 hours), so
// submission acceptance only means "instruction received"; the final outcome
// comes from status queries.
package switchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bantec-cbs/interbank-orchestrator/internal/domain"
	"github.com/shopspring/decimal"
)

// Gateway is the switch contract the orchestrator consumes. SubmitTransfer
// must be safe to retry with the same idempotency key: the switch
// deduplicates by instruction id. TransferStatus is read-only.
type Gateway interface {
	SubmitTransfer(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	TransferStatus(ctx context.Context, instructionRef string) (domain.PollResult, error)
}

// Directory lists the banks registered on the switch network.
type Directory interface {
	Banks(ctx context.Context) ([]domain.Bank, error)
}

// SubmitRequest carries everything needed to build the wire envelope.
type SubmitRequest struct {
	IdempotencyKey     string
	SourceAccount      string
	SourceHolderName   string
	DestinationAccount string
	DestinationBankID  string
	BeneficiaryName    string
	Amount             decimal.Decimal
	Description        string
}

// SubmitResult is the normalized submission response: either accepted with an
// instruction reference, or rejected with the raw business signal.
type SubmitResult struct {
	Accepted       bool
	InstructionRef string
	RawStatus      string
	Code           string
	Message        string
}

// Wire envelope, ISO 20022 flavoured, as the switch expects it.
type transferEnvelope struct {
	Header envelopeHeader `json:"header"`
	Body   envelopeBody   `json:"body"`
}

type envelopeHeader struct {
	MessageID         string `json:"messageId"`
	CreationDateTime  string `json:"creationDateTime"`
	OriginatingBankID string `json:"originatingBankId"`
}

type envelopeBody struct {
	InstructionID         string         `json:"instructionId"`
	EndToEndID            string         `json:"endToEndId"`
	Amount                envelopeAmount `json:"amount"`
	Debtor                envelopeParty  `json:"debtor"`
	Creditor              envelopeParty  `json:"creditor"`
	RemittanceInformation string         `json:"remittanceInformation,omitempty"`
}

type envelopeAmount struct {
	Currency string          `json:"currency"`
	Value    decimal.Decimal `json:"value"`
}

type envelopeParty struct {
	Name         string `json:"name"`
	AccountID    string `json:"accountId"`
	AccountType  string `json:"accountType"`
	TargetBankID string `json:"targetBankId,omitempty"`
}

type switchResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		InstructionID string `json:"instructionId"`
		Estado        string `json:"estado"`
		BancoOrigen   string `json:"bancoOrigen"`
		BancoDestino  string `json:"bancoDestino"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type bankListResponse struct {
	Bancos []struct {
		ID     string `json:"id"`
		Codigo string `json:"codigo"`
		Nombre string `json:"nombre"`
		BIN    string `json:"bin"`
	} `json:"bancos"`
}

// Client is the HTTP implementation of Gateway and Directory.
type Client struct {
	baseURL  string
	bankCode string
	currency string
	http     *http.Client
}

func NewClient(baseURL, bankCode string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		bankCode: bankCode,
		currency: "USD",
		http:     &http.Client{Timeout: timeout},
	}
}

// SubmitTransfer posts the instruction to the switch. The idempotency key is
// the instruction id, so a transport-level retry with the same key cannot
// duplicate the money movement.
func (c *Client) SubmitTransfer(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	env := transferEnvelope{
		Header: envelopeHeader{
			MessageID:         fmt.Sprintf("MSG-%s-%d", c.bankCode, time.Now().UnixMilli()),
			CreationDateTime:  time.Now().UTC().Format(time.RFC3339),
			OriginatingBankID: c.bankCode,
		},
		Body: envelopeBody{
			InstructionID: req.IdempotencyKey,
			EndToEndID:    fmt.Sprintf("REF-%s-%s", c.bankCode, req.IdempotencyKey),
			Amount:        envelopeAmount{Currency: c.currency, Value: req.Amount},
			Debtor: envelopeParty{
				Name:        req.SourceHolderName,
				AccountID:   req.SourceAccount,
				AccountType: "SAVINGS",
			},
			Creditor: envelopeParty{
				Name:         req.BeneficiaryName,
				AccountID:    req.DestinationAccount,
				AccountType:  "SAVINGS",
				TargetBankID: req.DestinationBankID,
			},
			RemittanceInformation: req.Description,
		},
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("marshal transfer envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/transfers", bytes.NewReader(payload))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("build transfer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit transfer: %w", err)
	}
	defer resp.Body.Close()

	var sw switchResponse
	if err := decodeBody(resp.Body, &sw); err != nil {
		return SubmitResult{}, fmt.Errorf("decode transfer response: %w", err)
	}

	result := SubmitResult{Accepted: sw.Success}
	if sw.Data != nil {
		result.InstructionRef = sw.Data.InstructionID
		result.RawStatus = sw.Data.Estado
	}
	if sw.Error != nil {
		result.Code = sw.Error.Code
		result.Message = sw.Error.Message
	}
	// A transport-level rejection without a decoded business signal is an
	// error, not a classified rejection.
	if !sw.Success && sw.Error == nil && resp.StatusCode >= http.StatusInternalServerError {
		return SubmitResult{}, fmt.Errorf("switch returned status %d", resp.StatusCode)
	}
	// The switch may echo no instruction id; fall back to the idempotency key
	// as the polling handle.
	if result.Accepted && result.InstructionRef == "" {
		result.InstructionRef = req.IdempotencyKey
	}
	return result, nil
}

// TransferStatus performs one read-only status query.
func (c *Client) TransferStatus(ctx context.Context, instructionRef string) (domain.PollResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v2/transfers/"+instructionRef, nil)
	if err != nil {
		return domain.PollResult{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.PollResult{}, fmt.Errorf("query transfer status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.PollResult{}, fmt.Errorf("instruction %s not found on switch", instructionRef)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return domain.PollResult{}, fmt.Errorf("switch status endpoint returned %d", resp.StatusCode)
	}

	var sw switchResponse
	if err := decodeBody(resp.Body, &sw); err != nil {
		return domain.PollResult{}, fmt.Errorf("decode status response: %w", err)
	}

	pr := domain.PollResult{}
	if sw.Data != nil {
		pr.RawStatus = sw.Data.Estado
	}
	if sw.Error != nil {
		pr.RawCode = sw.Error.Code
		pr.RawMessage = sw.Error.Message
	}
	return pr, nil
}

// Banks fetches the registered-bank directory from the switch.
func (c *Client) Banks(ctx context.Context) ([]domain.Bank, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/red/bancos", nil)
	if err != nil {
		return nil, fmt.Errorf("build bank directory request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("query bank directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bank directory endpoint returned %d", resp.StatusCode)
	}

	var list bankListResponse
	if err := decodeBody(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("decode bank directory: %w", err)
	}

	banks := make([]domain.Bank, 0, len(list.Bancos))
	for _, b := range list.Bancos {
		id := b.Codigo
		if id == "" {
			id = b.ID
		}
		name := b.Nombre
		if name == "" {
			name = id
		}
		banks = append(banks, domain.Bank{ID: id, Name: name, Code: b.Codigo, BIN: b.BIN})
	}
	return banks, nil
}

func decodeBody(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
