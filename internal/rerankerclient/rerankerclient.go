// Package rerankerclient is a reference HTTP implementation of
// ports.RerankerPort, targeting a cross-encoder reranker service (workflow
// §6, an explicit external collaborator). It follows proxy.Client's single
// POST, JSON request/response, context-bound timeout shape, retargeted
// from an OpenAI-compatible chat endpoint to a purpose-built
// {query, texts[]} -> [{index, score}] rerank endpoint.
package rerankerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/corvidai/retrieval-core/internal/ports"
)

const defaultTimeout = 30 * time.Second

// Client calls a cross-encoder reranker's HTTP endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting baseURL (e.g. http://localhost:8090). A
// per-call timeout is still applied via ctx by the caller (workflow
// §5/§6's rerank.timeoutMs); httpClient itself carries no default timeout
// so context cancellation is always authoritative.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float32 `json:"score"`
	} `json:"results"`
}

// Rerank implements ports.RerankerPort.
func (c *Client) Rerank(ctx context.Context, query string, texts []string) ([]ports.RerankScore, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling reranker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker returned status %d", resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}

	out := make([]ports.RerankScore, len(parsed.Results))
	for i, r := range parsed.Results {
		out[i] = ports.RerankScore{Index: r.Index, Score: r.Score}
	}
	return out, nil
}
