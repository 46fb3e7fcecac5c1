package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// UpstreamGenerator repassa a requisição original para o serviço de geração
// e espera de volta um JSON com "image_url".
type UpstreamGenerator struct {
	url    string
	client *http.Client
}

// NewUpstreamGenerator encaminha a requisição para url. URL vazia devolve ErrGeneratorUnavailable.
func NewUpstreamGenerator(url string, timeout time.Duration) *UpstreamGenerator {
	return &UpstreamGenerator{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *UpstreamGenerator) Generate(ctx context.Context, r *http.Request) (TryOnResult, error) {
	if strings.TrimSpace(g.url) == "" {
		return TryOnResult{}, ErrGeneratorUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, r.Body)
	if err != nil {
		return TryOnResult{}, fmt.Errorf("build upstream request: %w", err)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	req.ContentLength = r.ContentLength

	resp, err := g.client.Do(req)
	if err != nil {
		return TryOnResult{}, fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return TryOnResult{}, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result TryOnResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return TryOnResult{}, fmt.Errorf("decode upstream response: %w", err)
	}
	if result.ImageURL == "" {
		return TryOnResult{}, fmt.Errorf("upstream response missing image_url")
	}
	return result, nil
}
