package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const voyageEndpoint = "https://api.voyageai.com/v1/embeddings"

// VoyageEmbedder embeds text through Voyage AI's voyage-code-3 model over
// HTTP, with token-aware batching, retries, and cumulative cost logging.
type VoyageEmbedder struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger

	mu              sync.Mutex
	totalTokensUsed int64
	cost5Warned     bool
	cost10Warned    bool
}

var _ Embedder = (*VoyageEmbedder)(nil)

// NewVoyageEmbedder creates an embedder against the live Voyage API.
func NewVoyageEmbedder(apiKey string, logger *slog.Logger) *VoyageEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &VoyageEmbedder{
		apiKey:     apiKey,
		endpoint:   voyageEndpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

type voyageRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type voyageEmbeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type voyageUsage struct {
	TotalTokens int `json:"total_tokens"`
}

type voyageResponse struct {
	Data  []voyageEmbeddingData `json:"data"`
	Usage voyageUsage           `json:"usage"`
}

type voyageErrorBody struct {
	Detail string `json:"detail"`
}

// EmbedDocuments embeds chunk texts for storage, batching successive
// texts under both a count cap and an estimated token cap.
func (e *VoyageEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	vectors := make([][]float32, 0, len(texts))
	totalTokens := 0

	for _, batch := range batchTexts(texts) {
		embeddings, tokens, err := e.embedBatch(ctx, batch, "document")
		if err != nil {
			return nil, 0, err
		}
		vectors = append(vectors, embeddings...)
		totalTokens += tokens
	}

	e.accumulateCost(totalTokens)
	return vectors, totalTokens, nil
}

// EmbedQuery embeds a single search query.
func (e *VoyageEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, tokens, err := e.embedBatch(ctx, []string{query}, "query")
	if err != nil {
		return nil, err
	}
	e.accumulateCost(tokens)
	return embeddings[0], nil
}

// embedBatch embeds one batch. A "max tokens" rejection splits the
// batch in half and retries each half recursively, taking priority over
// generic retry's backoff; every other failure goes through generic retry.
func (e *VoyageEmbedder) embedBatch(ctx context.Context, batch []string, inputType string) ([][]float32, int, error) {
	var result *callResult

	err := retryWithBackoff(ctx, func() error {
		resp, callErr := e.call(ctx, batch, inputType)
		if callErr == nil {
			result = resp
			return nil
		}

		if isMaxTokensError(callErr) && len(batch) > 1 {
			mid := len(batch) / 2
			leftVecs, leftTokens, leftErr := e.embedBatch(ctx, batch[:mid], inputType)
			if leftErr != nil {
				return &NonRetryableError{Err: leftErr}
			}
			rightVecs, rightTokens, rightErr := e.embedBatch(ctx, batch[mid:], inputType)
			if rightErr != nil {
				return &NonRetryableError{Err: rightErr}
			}
			result = &callResult{vectors: append(leftVecs, rightVecs...), tokens: leftTokens + rightTokens}
			return nil
		}

		return callErr
	})
	if err != nil {
		return nil, 0, err
	}

	return result.vectors, result.tokens, nil
}

type callResult struct {
	vectors [][]float32
	tokens  int
}

// call performs a single HTTP round trip against the Voyage API.
func (e *VoyageEmbedder) call(ctx context.Context, batch []string, inputType string) (*callResult, error) {
	body, err := json.Marshal(voyageRequest{Input: batch, Model: ModelName, InputType: inputType})
	if err != nil {
		return nil, &NonRetryableError{Err: fmt.Errorf("marshal embedding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &NonRetryableError{Err: fmt.Errorf("build embedding request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	httpResp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	var parsed voyageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &NonRetryableError{Err: fmt.Errorf("decode embedding response: %w", err)}
	}

	vectors := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		vectors[d.Index] = d.Embedding
	}

	return &callResult{vectors: vectors, tokens: parsed.Usage.TotalTokens}, nil
}

// classifyHTTPError turns an HTTP failure status into a retryable or
// non-retryable error: authentication and malformed-request failures
// never succeed on retry, so they propagate immediately.
func classifyHTTPError(status int, body []byte) error {
	var parsed voyageErrorBody
	_ = json.Unmarshal(body, &parsed)
	detail := parsed.Detail
	if detail == "" {
		detail = string(body)
	}

	err := fmt.Errorf("voyage embedding request failed with status %d: %s", status, detail)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
		return &NonRetryableError{Err: err}
	default:
		return err
	}
}

// isMaxTokensError reports whether the service rejected a batch for
// exceeding its own per-request token limit.
func isMaxTokensError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "max") && strings.Contains(strings.ToLower(err.Error()), "token")
}

// batchTexts packs successive texts into batches bounded by both a
// count cap and an estimated token cap.
func batchTexts(texts []string) [][]string {
	var batches [][]string
	var current []string
	currentTokens := 0

	for _, t := range texts {
		tokens := estimateBatchTokens([]string{t})
		if len(current) > 0 && (len(current) >= MaxBatchSize || currentTokens+tokens > MaxBatchTokens) {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, t)
		currentTokens += tokens
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

// accumulateCost adds tokens to the running total and logs a one-shot
// warning the first time cumulative estimated cost crosses $5 or $10.
func (e *VoyageEmbedder) accumulateCost(tokens int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalTokensUsed += int64(tokens)
	cost := (float64(e.totalTokensUsed) / 1_000_000) * CostPerMillionTokens

	if cost >= CostThreshold10USD && !e.cost10Warned {
		e.cost10Warned = true
		e.logger.Warn("voyage embedding cost threshold exceeded",
			"threshold", "$10", "estimated_cost_usd", cost, "total_tokens", e.totalTokensUsed)
	} else if cost >= CostThreshold5USD && !e.cost5Warned {
		e.cost5Warned = true
		e.logger.Warn("voyage embedding cost threshold exceeded",
			"threshold", "$5", "estimated_cost_usd", cost, "total_tokens", e.totalTokensUsed)
	}
}
