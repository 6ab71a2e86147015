package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		err  error
	}{
		{name: "whole", in: "150", want: "150"},
		{name: "two_decimals", in: "150.00", want: "150"},
		{name: "cents", in: "0.45", want: "0.45"},
		{name: "trimmed", in: " 12.50 ", want: "12.5"},
		{name: "not_numeric", in: "12,50", err: ErrAmountNotNumeric},
		{name: "empty", in: "", err: ErrAmountNotNumeric},
		{name: "zero", in: "0", err: ErrAmountNotPositive},
		{name: "negative", in: "-5", err: ErrAmountNotPositive},
		{name: "three_decimals", in: "10.123", err: ErrAmountTooPrecise},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			want, _ := decimal.NewFromString(tc.want)
			require.True(t, got.Equal(want), "got %s want %s", got, want)
		})
	}
}

func TestCheckFunds(t *testing.T) {
	balance := decimal.NewFromFloat(100.00)

	require.NoError(t, CheckFunds(decimal.NewFromFloat(100.00), balance))
	require.NoError(t, CheckFunds(decimal.NewFromFloat(99.99), balance))
	require.ErrorIs(t, CheckFunds(decimal.NewFromFloat(150.00), balance), ErrInsufficientBalance)
}

func TestIsTerminalState(t *testing.T) {
	for _, s := range []string{StateRejected, StateCompleted, StateFailed, StateTimeoutPending} {
		require.True(t, IsTerminalState(s), s)
	}
	for _, s := range []string{StateIdle, StateSubmitting, StatePolling} {
		require.False(t, IsTerminalState(s), s)
	}
}
