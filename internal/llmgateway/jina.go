package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// JinaBackend implements Provider's Embed against a Jina-style HTTP
// embeddings endpoint (spec §4.5: "two initial backends ... a Jina-style
// HTTP"). Complete is not supported — Jina-style deployments are
// embedding-only, so a JinaBackend is only ever wired as an embedding
// provider alongside an OpenAIBackend completion provider, never alone.
type JinaBackend struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	embedModel string
}

func NewJinaBackend(baseURL, apiKey, embedModel string) *JinaBackend {
	return &JinaBackend{
		client:     &http.Client{},
		baseURL:    baseURL,
		apiKey:     apiKey,
		embedModel: embedModel,
	}
}

func (b *JinaBackend) Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	return CompleteResult{}, fmt.Errorf("jina: completion is not supported by this backend")
}

type jinaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type jinaEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (b *JinaBackend) Embed(ctx context.Context, req EmbedRequest) ([][]float32, error) {
	model := req.Model
	if model == "" {
		model = b.embedModel
	}

	body, err := json.Marshal(jinaEmbedRequest{Model: model, Input: req.Texts})
	if err != nil {
		return nil, fmt.Errorf("jina: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("jina: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("jina: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("jina: embeddings endpoint returned status %d", resp.StatusCode)
	}

	var parsed jinaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("jina: decode response: %w", err)
	}

	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
