package handler

import (
	"strings"

	"slipcheck/internal/receipt/providers"
	dErrors "slipcheck/pkg/domain-errors"
	"slipcheck/pkg/validation"
)

// VerifyRequest is the body of POST /verify.
type VerifyRequest struct {
	Provider      string `json:"provider" validate:"required,notblank,max=32"`
	Reference     string `json:"reference" validate:"required,notblank,max=64,printascii,excludesall=:"`
	AccountSuffix string `json:"account_suffix,omitempty" validate:"omitempty,max=32,printascii,excludesall=:"`
}

func (r *VerifyRequest) Normalize() {
	if r == nil {
		return
	}
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
	r.Reference = strings.TrimSpace(r.Reference)
	r.AccountSuffix = strings.TrimSpace(r.AccountSuffix)
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// Args returns the provider arguments carried by the request.
func (r *VerifyRequest) Args() map[string]string {
	if r.AccountSuffix == "" {
		return nil
	}
	return map[string]string{providers.ArgAccountSuffix: r.AccountSuffix}
}
