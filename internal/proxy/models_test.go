package proxy

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	json "github.com/bytedance/sonic"
)

func TestModelsTranslated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("upstream path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"object": "list",
			"data": [
				{"id": "gpt-4o", "object": "model", "created": 1715367049, "owned_by": "system"},
				{"id": "gpt-4o-mini", "object": "model", "created": 1721172741, "owned_by": "system"}
			]
		}`)
	}))
	defer upstream.Close()

	h := newTestHandler(upstream.URL, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	h.HandleModels(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var list modelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(list.Data) != 2 {
		t.Fatalf("got %d models, want 2", len(list.Data))
	}
	if list.Data[0].Type != "model" || list.Data[0].ID != "gpt-4o" {
		t.Errorf("first model = %+v", list.Data[0])
	}
	if list.Data[0].CreatedAt == "" {
		t.Error("created_at is empty")
	}
	if list.HasMore {
		t.Error("has_more should be false")
	}
	if list.FirstID == nil || *list.FirstID != "gpt-4o" || list.LastID == nil || *list.LastID != "gpt-4o-mini" {
		t.Errorf("first_id/last_id = %v/%v", list.FirstID, list.LastID)
	}
}

func TestModelsCached(t *testing.T) {
	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"object": "list", "data": [{"id": "gpt-4o", "object": "model", "created": 1, "owned_by": "system"}]}`)
	}))
	defer upstream.Close()

	h := newTestHandler(upstream.URL, nil)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		rec := httptest.NewRecorder()
		h.HandleModels(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("upstream hits = %d, want 1 (cached)", got)
	}
}

func TestModelsUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "bad key", "type": "invalid_api_key"}}`)
	}))
	defer upstream.Close()

	h := newTestHandler(upstream.URL, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	h.HandleModels(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
