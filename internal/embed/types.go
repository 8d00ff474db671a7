package embed

import "context"

// Voyage Code 3 model constants.
const (
	ModelName            = "voyage-code-3"
	Dimensions           = 1024 // Matryoshka: 256-2048, pinned at build time
	MaxBatchSize         = 128
	MaxBatchTokens       = 100_000
	TokensPerChar        = 4 // coarse batching heuristic, distinct from the chunker's own token_count
	MaxRetries           = 5
	CostPerMillionTokens = 0.18
	CostThreshold5USD    = 5.0
	CostThreshold10USD   = 10.0
)

// Embedder turns chunk texts and search queries into fixed-dimension
// vectors via a remote embedding service.
type Embedder interface {
	// EmbedDocuments embeds a batch of chunk texts, returning one vector
	// per input text in the same order, plus the total tokens billed.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, int, error)

	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// estimateBatchTokens is the coarse 4-chars-per-token heuristic used only
// to decide batch boundaries before the remote service reports real usage.
func estimateBatchTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += (len(t) + TokensPerChar - 1) / TokensPerChar
	}
	return total
}
