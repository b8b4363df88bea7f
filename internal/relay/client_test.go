package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"solana-trade-engine/internal/domain"
)

func TestClient_SubmitBundle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Relay-Auth"); got != "uuid-1234" {
			t.Errorf("auth header = %q, want uuid-1234", got)
		}

		var req bundleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "sendBundle" {
			t.Errorf("method = %s, want sendBundle", req.Method)
		}

		txs, ok := req.Params[0].([]interface{})
		if !ok || len(txs) != 2 {
			t.Errorf("expected 2 bundled transactions, got %v", req.Params[0])
		}
		config, ok := req.Params[1].(map[string]interface{})
		if !ok || config["tipLamports"] != float64(50_000) {
			t.Errorf("expected tipLamports 50000, got %v", req.Params[1])
		}

		json.NewEncoder(w).Encode(map[string]string{"result": "bundle-abc"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "uuid-1234")
	ctx := context.Background()

	id, err := client.SubmitBundle(ctx, []string{"dHgx", "dHgy"}, 50_000)
	if err != nil {
		t.Fatalf("SubmitBundle: %v", err)
	}
	if id != "bundle-abc" {
		t.Errorf("bundle id = %s, want bundle-abc", id)
	}
}

func TestClient_SubmitBundle_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "forbidden", http.StatusForbidden)
			},
		},
		{
			name: "rpc error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]interface{}{"code": -32600, "message": "invalid bundle"},
				})
			},
		},
		{
			name: "missing bundle id",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(server.URL, "uuid-1234")
			_, err := client.SubmitBundle(context.Background(), []string{"dHgx"}, 0)
			if !errors.Is(err, domain.ErrExternalService) {
				t.Errorf("expected ErrExternalService, got %v", err)
			}
		})
	}
}

func TestClient_SubmitBundle_EmptyBundle(t *testing.T) {
	client := NewClient("http://unused", "uuid")
	_, err := client.SubmitBundle(context.Background(), nil, 0)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
