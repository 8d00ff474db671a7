// Package mcp implements the ToolDispatcher and its two wire transports
// (stdio and streamable HTTP) over the Model Context Protocol SDK: the
// five tools — search, index, status, watch_start, watch_stop — each
// returning a UTF-8 JSON string envelope.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/lgrepd/lgrepd/internal/mcperr"
	"github.com/lgrepd/lgrepd/internal/registry"
	"github.com/lgrepd/lgrepd/internal/store"
)

// Dispatcher implements the five tool operations over a Registry,
// translating every outcome into a JSON string envelope so no tool
// handler ever lets an internal error cross the transport.
type Dispatcher struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// New builds a Dispatcher over reg.
func New(reg *registry.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: reg, logger: logger}
}

func roundMs(d float64) float64 {
	return math.Round(d*100) / 100
}

// searchResultDTO is the wire shape of one hit in a search response.
type searchResultDTO struct {
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	MatchType string  `json:"match_type"`
}

type searchOutput struct {
	Results     []searchResultDTO `json:"results"`
	QueryTimeMs float64           `json:"query_time_ms"`
	TotalChunks int               `json:"total_chunks"`
}

// Search implements search(query, path, limit, hybrid). Admission
// order: in-memory state, then on-disk cache via Ensure, then
// AutoIndex, then a path-does-not-exist error.
func (d *Dispatcher) Search(ctx context.Context, query, path string, limit int, hybrid bool) string {
	if query == "" {
		return mcperr.Translate(mcperr.ErrEmptyQuery).Envelope()
	}
	if limit <= 0 {
		limit = 10
	}

	st, err := d.admitForSearch(ctx, path)
	if err != nil {
		return mcperr.Translate(err).Envelope()
	}

	embedder, err := d.registry.SharedEmbedder()
	if err != nil {
		return mcperr.Translate(err).Envelope()
	}
	vec, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return mcperr.Translate(err).Envelope()
	}

	var results *store.SearchResults
	if hybrid {
		results, err = st.Store.SearchHybrid(ctx, vec, query, limit)
	} else {
		results, err = st.Store.SearchVector(ctx, vec, limit)
	}
	if err != nil {
		return mcperr.Translate(err).Envelope()
	}

	out := searchOutput{
		Results:     make([]searchResultDTO, len(results.Results)),
		QueryTimeMs: roundMs(results.QueryTimeMs),
		TotalChunks: results.TotalChunks,
	}
	for i, r := range results.Results {
		out.Results[i] = searchResultDTO{
			FilePath:  r.FilePath,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Content:   r.Content,
			Score:     r.Score,
			MatchType: string(r.MatchType),
		}
	}
	return marshalEnvelope(out)
}

// admitForSearch resolves a search path to a live ProjectState through
// the four-step admission ladder Search documents.
func (d *Dispatcher) admitForSearch(ctx context.Context, path string) (*registry.ProjectState, error) {
	if st, ok := d.registry.Get(path); ok {
		return st, nil
	}
	if d.registry.HasDiskCache(path) {
		return d.registry.Ensure(ctx, path)
	}
	if d.registry.IsDirectory(path) {
		return d.registry.AutoIndex(ctx, path)
	}
	return nil, mcperr.ErrNotADirectory
}

type indexOutput struct {
	FileCount   int     `json:"file_count"`
	ChunkCount  int     `json:"chunk_count"`
	DurationMs  float64 `json:"duration_ms"`
	TotalTokens int     `json:"total_tokens"`
}

// Index implements index(path): ensure the project then run index_all.
func (d *Dispatcher) Index(ctx context.Context, path string) string {
	st, err := d.registry.Ensure(ctx, path)
	if err != nil {
		return mcperr.Translate(err).Envelope()
	}

	status, err := st.Indexer.IndexAll(ctx)
	if err != nil {
		return mcperr.Translate(err).Envelope()
	}

	return marshalEnvelope(indexOutput{
		FileCount:   status.FileCount,
		ChunkCount:  status.ChunkCount,
		DurationMs:  roundMs(status.DurationMs),
		TotalTokens: status.TotalTokens,
	})
}

type projectStatusDTO struct {
	Path       string `json:"path"`
	ChunkCount int    `json:"chunk_count"`
	Watching   bool   `json:"watching"`
	DiskCache  bool   `json:"disk_cache"`
}

type allProjectsOutput struct {
	Projects []projectStatusDTO `json:"projects"`
}

// Status implements status(path?): single-project stats if path is
// given, otherwise an aggregate view of every live project. A path with
// an on-disk cache but no in-memory state is read directly from disk,
// without requiring an API key, and marked disk_cache: true.
func (d *Dispatcher) Status(ctx context.Context, path string) string {
	if path == "" {
		return d.statusAll(ctx)
	}
	return d.statusOne(ctx, path)
}

func (d *Dispatcher) statusOne(ctx context.Context, path string) string {
	if st, ok := d.registry.Get(path); ok {
		count, err := st.Store.Count(ctx)
		if err != nil {
			return mcperr.Translate(err).Envelope()
		}
		return marshalEnvelope(projectStatusDTO{
			Path:       st.Path,
			ChunkCount: count,
			Watching:   st.Watching(),
			DiskCache:  true,
		})
	}

	if !d.registry.HasDiskCache(path) {
		return mcperr.Translate(mcperr.ErrNotADirectory).Envelope()
	}

	count, err := d.registry.ReadDiskCacheCount(ctx, path)
	if err != nil {
		return mcperr.Translate(err).Envelope()
	}
	return marshalEnvelope(projectStatusDTO{
		Path:       path,
		ChunkCount: count,
		Watching:   false,
		DiskCache:  true,
	})
}

func (d *Dispatcher) statusAll(ctx context.Context) string {
	states := d.registry.All()
	out := allProjectsOutput{Projects: make([]projectStatusDTO, 0, len(states))}
	for _, st := range states {
		count, err := st.Store.Count(ctx)
		if err != nil {
			d.logger.Warn("status_all_count_failed", "path", st.Path, "error", err)
			continue
		}
		out.Projects = append(out.Projects, projectStatusDTO{
			Path:       st.Path,
			ChunkCount: count,
			Watching:   st.Watching(),
			DiskCache:  true,
		})
	}
	return marshalEnvelope(out)
}

type watchStartOutput struct {
	Path     string `json:"path"`
	Watching bool   `json:"watching"`
}

// WatchStart implements watch_start(path).
func (d *Dispatcher) WatchStart(ctx context.Context, path string) string {
	st, err := d.registry.StartWatch(ctx, path)
	if err != nil {
		return mcperr.Translate(err).Envelope()
	}
	return marshalEnvelope(watchStartOutput{Path: st.Path, Watching: true})
}

type watchStopOutput struct {
	Stopped         bool     `json:"stopped"`
	Project         string   `json:"project,omitempty"`
	ProjectsStopped []string `json:"projects_stopped,omitempty"`
}

// WatchStop implements watch_stop(path?): stops the named project's
// watcher, or every currently watching project if path is empty.
func (d *Dispatcher) WatchStop(path string) string {
	if path == "" {
		stopped := d.registry.StopAllWatches()
		return marshalEnvelope(watchStopOutput{Stopped: true, ProjectsStopped: stopped})
	}

	st, ok := d.registry.StopWatch(path)
	if !ok {
		return marshalEnvelope(watchStopOutput{Stopped: true})
	}
	return marshalEnvelope(watchStopOutput{Stopped: true, Project: st.Path})
}

func marshalEnvelope(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return mcperr.Translate(err).Envelope()
	}
	return string(b)
}
