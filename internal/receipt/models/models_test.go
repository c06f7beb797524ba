package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyResult_Validate(t *testing.T) {
	amount := decimal.RequireFromString("10.50")

	tests := []struct {
		name    string
		result  VerifyResult
		wantErr bool
	}{
		{name: "failure is always valid", result: Failure("cbe", "boom")},
		{name: "success with receiver and amount", result: VerifyResult{Success: true, Receiver: "Jane", Amount: &amount}},
		{name: "success without amount", result: VerifyResult{Success: true, Receiver: "Jane"}, wantErr: true},
		{name: "success without receiver", result: VerifyResult{Success: true, Amount: &amount}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncompleteResult)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifyResult_CloneIsDeep(t *testing.T) {
	amount := decimal.RequireFromString("1250.00")
	date := time.Date(2024, 1, 12, 10, 30, 0, 0, time.UTC)
	orig := VerifyResult{Success: true, Receiver: "Jane Roe", Amount: &amount, Date: &date}

	clone := orig.Clone()
	*clone.Amount = decimal.NewFromInt(1)
	*clone.Date = time.Time{}

	require.NotNil(t, orig.Amount)
	assert.True(t, orig.Amount.Equal(decimal.RequireFromString("1250.00")))
	assert.Equal(t, 2024, orig.Date.Year())
}
