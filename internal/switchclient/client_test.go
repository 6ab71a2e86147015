package switchclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSubmitTransferBuildsEnvelopeAndParsesAcceptance(t *testing.T) {
	var captured transferEnvelope
	var idemHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v2/transfers", r.URL.Path)
		idemHeader = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"instructionId":"SWX-001","estado":"PENDIENTE","bancoDestino":"NEXUS_BANK"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "BANTEC", 5*time.Second)
	result, err := c.SubmitTransfer(context.Background(), SubmitRequest{
		IdempotencyKey:     "key-123",
		SourceAccount:      "220012345",
		SourceHolderName:   "Ana Torres",
		DestinationAccount: "990076543",
		DestinationBankID:  "NEXUS_BANK",
		BeneficiaryName:    "Maria Lopez",
		Amount:             decimal.NewFromFloat(150.00),
		Description:        "Transfer to Maria Lopez - Bank NEXUS_BANK",
	})
	require.NoError(t, err)

	require.True(t, result.Accepted)
	require.Equal(t, "SWX-001", result.InstructionRef)
	require.Equal(t, "PENDIENTE", result.RawStatus)

	require.Equal(t, "key-123", idemHeader)
	require.Equal(t, "key-123", captured.Body.InstructionID)
	require.Equal(t, "REF-BANTEC-key-123", captured.Body.EndToEndID)
	require.Equal(t, "BANTEC", captured.Header.OriginatingBankID)
	require.Equal(t, "NEXUS_BANK", captured.Body.Creditor.TargetBankID)
	require.Equal(t, "990076543", captured.Body.Creditor.AccountID)
	require.Equal(t, "USD", captured.Body.Amount.Currency)
}

func TestSubmitTransferFallsBackToKeyAsInstructionRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"estado":"PENDIENTE"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "BANTEC", 5*time.Second)
	result, err := c.SubmitTransfer(context.Background(), SubmitRequest{IdempotencyKey: "key-777", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.Equal(t, "key-777", result.InstructionRef)
}

func TestSubmitTransferParsesBusinessRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"AM04","message":"Fondos insuficientes"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "BANTEC", 5*time.Second)
	result, err := c.SubmitTransfer(context.Background(), SubmitRequest{IdempotencyKey: "key-1", Amount: decimal.NewFromInt(900)})
	require.NoError(t, err)

	require.False(t, result.Accepted)
	require.Equal(t, "AM04", result.Code)
	require.Equal(t, "Fondos insuficientes", result.Message)
}

func TestTransferStatusMapsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/transfers/SWX-001", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":false,"data":{"estado":"RECHAZADA"},"error":{"code":"AC04","message":"cuenta cerrada"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "BANTEC", 5*time.Second)
	pr, err := c.TransferStatus(context.Background(), "SWX-001")
	require.NoError(t, err)
	require.Equal(t, "RECHAZADA", pr.RawStatus)
	require.Equal(t, "AC04", pr.RawCode)
	require.Equal(t, "cuenta cerrada", pr.RawMessage)
}

func TestTransferStatusNotFoundIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "BANTEC", 5*time.Second)
	_, err := c.TransferStatus(context.Background(), "missing")
	require.Error(t, err)
}

func TestBanksParsesDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/red/bancos", r.URL.Path)
		_, _ = w.Write([]byte(`{"bancos":[{"codigo":"NEXUS_BANK","nombre":"Nexus Bank","bin":"270100"},{"id":"X1","nombre":"Other"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "BANTEC", 5*time.Second)
	banks, err := c.Banks(context.Background())
	require.NoError(t, err)
	require.Len(t, banks, 2)
	require.Equal(t, "NEXUS_BANK", banks[0].ID)
	require.Equal(t, "Nexus Bank", banks[0].Name)
	require.Equal(t, "X1", banks[1].ID)
}

func TestMockSwitchDeduplicatesByKey(t *testing.T) {
	m := NewMockSwitch()
	ctx := context.Background()

	first, err := m.SubmitTransfer(ctx, SubmitRequest{IdempotencyKey: "k1"})
	require.NoError(t, err)
	second, err := m.SubmitTransfer(ctx, SubmitRequest{IdempotencyKey: "k1"})
	require.NoError(t, err)

	require.Equal(t, first.InstructionRef, second.InstructionRef)
	require.Equal(t, 1, m.SubmissionCount())
}

func TestMockSwitchSettlesAfterConfiguredQueries(t *testing.T) {
	m := NewMockSwitch()
	m.SettleAfter = 2
	ctx := context.Background()

	res, err := m.SubmitTransfer(ctx, SubmitRequest{IdempotencyKey: "k1"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		pr, err := m.TransferStatus(ctx, res.InstructionRef)
		require.NoError(t, err)
		require.Equal(t, "PENDIENTE", pr.RawStatus)
	}
	pr, err := m.TransferStatus(ctx, res.InstructionRef)
	require.NoError(t, err)
	require.Equal(t, "COMPLETADA", pr.RawStatus)
}
