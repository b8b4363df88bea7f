package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_UsdPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "mintA" {
			t.Errorf("ids = %q, want mintA", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"mintA": map[string]string{"price": "142.37"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	price, err := client.UsdPrice(context.Background(), "mintA")
	if err != nil {
		t.Fatalf("UsdPrice: %v", err)
	}
	if price != 142.37 {
		t.Errorf("price = %v, want 142.37", price)
	}
}

func TestClient_UsdPrice_UnknownMint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{}})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	price, err := client.UsdPrice(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("UsdPrice: %v", err)
	}
	if price != 0 {
		t.Errorf("price = %v, want 0 for unknown mint", price)
	}
}

func TestClient_UsdPrice_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	if _, err := client.UsdPrice(context.Background(), "mintA"); err == nil {
		t.Error("expected error on 5xx")
	}
}
