package rerankerclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRerankCallsEndpointAndParsesScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("path = %s, want /rerank", r.URL.Path)
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Query != "hello" || len(req.Texts) != 2 {
			t.Fatalf("req = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 1, "score": 0.9},
				{"index": 0, "score": 0.1},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	scores, err := c.Rerank(t.Context(), "hello", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 2 || scores[0].Index != 1 || scores[0].Score != 0.9 {
		t.Errorf("scores = %+v", scores)
	}
}

func TestRerankNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Rerank(t.Context(), "q", []string{"a"})
	if err == nil {
		t.Fatal("expected error on 500 status")
	}
}

func TestRerankEmptyTexts(t *testing.T) {
	c := New("http://unused.invalid")
	scores, err := c.Rerank(t.Context(), "q", nil)
	if err != nil || scores != nil {
		t.Fatalf("Rerank(nil) = %v, %v; want nil, nil", scores, err)
	}
}
