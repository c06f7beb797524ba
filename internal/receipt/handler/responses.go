package handler

import (
	"slipcheck/internal/receipt/service"
)

type InvalidateResponse struct {
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
	Removed   int    `json:"removed"`
}

type ProvidersResponse struct {
	Providers []service.ProviderInfo `json:"providers"`
}

// ProviderHealthResponse reports bank reachability. Status is "ok" only when every bank
// answered.
type ProviderHealthResponse struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers"`
}

func toProviderHealthResponse(results map[string]error) ProviderHealthResponse {
	resp := ProviderHealthResponse{Status: "ok", Providers: make(map[string]string, len(results))}
	for code, err := range results {
		if err != nil {
			resp.Providers[code] = "down: " + err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Providers[code] = "up"
	}
	return resp
}
