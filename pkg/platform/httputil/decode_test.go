package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "slipcheck/pkg/domain-errors"
)

type lookupRequest struct {
	Reference string `json:"reference"`
}

func (r *lookupRequest) Normalize() {
	r.Reference = strings.ToUpper(strings.TrimSpace(r.Reference))
}

func (r *lookupRequest) Validate() error {
	if r.Reference == "" {
		return errors.New("reference is required")
	}
	return nil
}

type codedRequest struct {
	Provider string `json:"provider"`
}

func (r *codedRequest) Validate() error {
	if r.Provider == "" {
		return dErrors.New(dErrors.CodeBadRequest, "provider is required")
	}
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDecodeJSON(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed", `{bad json}`, http.StatusBadRequest, "bad_request"},
		{"empty", ``, http.StatusBadRequest, "bad_request"},
		{"trailing value", `{"reference":"FT1"} {"reference":"FT2"}`, http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			got, ok := DecodeJSON[lookupRequest](w, r, discard, "req-1")
			assert.False(t, ok)
			assert.Nil(t, got)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeBody(t, w).Error)
		})
	}

	t.Run("oversized body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reference":"`+strings.Repeat("A", 64)+`"}`))
		w := httptest.NewRecorder()
		r.Body = http.MaxBytesReader(w, r.Body, 16)
		_, ok := DecodeJSON[lookupRequest](w, r, discard, "req-1")
		assert.False(t, ok)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("normalizes before validating", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reference":" ft1 "}`))
		got, ok := DecodeAndPrepare[lookupRequest](httptest.NewRecorder(), r, discard, "req-1")
		require.True(t, ok)
		assert.Equal(t, "FT1", got.Reference)
	})

	t.Run("plain validation error becomes validation_error", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reference":"  "}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[lookupRequest](w, r, discard, "req-1")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeBody(t, w)
		assert.Equal(t, "validation_error", resp.Error)
		assert.Equal(t, "reference is required", resp.ErrorDescription)
	})

	t.Run("coded validation error keeps its code", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[codedRequest](w, r, discard, "req-1")
		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeBody(t, w).Error)
	})
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{dErrors.New(dErrors.CodeNotFound, "unsupported provider"), http.StatusNotFound, "not_found"},
		{dErrors.New(dErrors.CodeUnavailable, "no renderer"), http.StatusServiceUnavailable, "unavailable"},
		{dErrors.New(dErrors.CodeTimeout, "bank timed out"), http.StatusGatewayTimeout, "timeout"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(w, tc.err)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.Equal(t, tc.code, decodeBody(t, w).Error)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	}

	w := httptest.NewRecorder()
	WriteError(w, errors.New("secret dsn"))
	assert.NotContains(t, w.Body.String(), "secret dsn")
}
