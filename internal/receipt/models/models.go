package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrIncompleteResult is returned by Validate when a successful result lacks
// the fields reconciliation depends on.
var ErrIncompleteResult = errors.New("receiver and amount are required")

// VerifyResult is the normalized outcome of a receipt verification.
// Empty strings and nil pointers mean the bank document did not carry the field.
type VerifyResult struct {
	Success         bool             `json:"success"`
	Provider        string           `json:"provider,omitempty"`
	Payer           string           `json:"payer,omitempty"`
	PayerAccount    string           `json:"payer_account,omitempty"`
	Receiver        string           `json:"receiver,omitempty"`
	ReceiverAccount string           `json:"receiver_account,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Date            *time.Time       `json:"date,omitempty"`
	Reference       string           `json:"reference,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// Failure builds an unsuccessful result carrying a human-readable cause.
func Failure(provider, message string) VerifyResult {
	return VerifyResult{
		Success:  false,
		Provider: provider,
		Error:    message,
	}
}

// Validate checks the minimum-fields invariant of a successful result.
// Failed results are always valid.
func (r *VerifyResult) Validate() error {
	if !r.Success {
		return nil
	}
	if r.Receiver == "" || r.Amount == nil {
		return ErrIncompleteResult
	}
	return nil
}

// Clone returns a deep copy so cached values can never be mutated by callers.
func (r VerifyResult) Clone() VerifyResult {
	out := r
	if r.Amount != nil {
		amount := *r.Amount
		out.Amount = &amount
	}
	if r.Date != nil {
		date := *r.Date
		out.Date = &date
	}
	return out
}
