package proxy

import (
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/bytedance/sonic"

	"github.com/sertdev/msgproxy/internal/translate"
)

// chatModelList is the OpenAI /v1/models response shape.
type chatModelList struct {
	Object string      `json:"object"`
	Data   []chatModel `json:"data"`
}

type chatModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// modelList is the Anthropic /v1/models response shape.
type modelList struct {
	Data    []modelInfo `json:"data"`
	HasMore bool        `json:"has_more"`
	FirstID *string     `json:"first_id"`
	LastID  *string     `json:"last_id"`
}

type modelInfo struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

// modelListCache holds the translated model list for a TTL, eliminating an
// upstream round trip on every /v1/models request.
type modelListCache struct {
	mu      sync.RWMutex
	body    []byte
	expires time.Time
	ttl     time.Duration
}

func newModelListCache(ttl time.Duration) *modelListCache {
	return &modelListCache{ttl: ttl}
}

func (c *modelListCache) get() ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.body == nil || time.Now().After(c.expires) {
		return nil, false
	}
	return c.body, true
}

func (c *modelListCache) set(body []byte) {
	c.mu.Lock()
	c.body = body
	c.expires = time.Now().Add(c.ttl)
	c.mu.Unlock()
}

// HandleModels proxies GET /v1/models, translating the upstream OpenAI model
// list into the Anthropic list shape. Results are cached; model aliases are
// resolved on message requests and do not appear here.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	if body, ok := h.models.get(); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		return
	}

	upstreamResp, err := h.upstream.Do(r.Context(), http.MethodGet, "/v1/models", nil)
	if err != nil {
		writeAnthropicError(w, http.StatusBadGateway, "api_error", "Failed to connect to upstream")
		return
	}
	defer upstreamResp.Body.Close()

	upstreamBody, err := io.ReadAll(upstreamResp.Body)
	if err != nil {
		writeAnthropicError(w, http.StatusBadGateway, "api_error", "Failed to read upstream response")
		return
	}

	if upstreamResp.StatusCode >= 400 {
		errBody, status := translate.TranslateUpstreamError(upstreamResp.StatusCode, upstreamBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(errBody)
		return
	}

	var upstream chatModelList
	if err := json.Unmarshal(upstreamBody, &upstream); err != nil {
		writeAnthropicError(w, http.StatusBadGateway, "api_error", "Failed to parse upstream response")
		return
	}

	list := modelList{Data: make([]modelInfo, 0, len(upstream.Data))}
	for _, m := range upstream.Data {
		list.Data = append(list.Data, modelInfo{
			Type:        "model",
			ID:          m.ID,
			DisplayName: m.ID,
			CreatedAt:   time.Unix(m.Created, 0).UTC().Format(time.RFC3339),
		})
	}
	if len(list.Data) > 0 {
		list.FirstID = &list.Data[0].ID
		list.LastID = &list.Data[len(list.Data)-1].ID
	}

	body, err := json.Marshal(list)
	if err != nil {
		writeAnthropicError(w, http.StatusInternalServerError, "api_error", "Failed to encode model list")
		return
	}

	h.models.set(body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
