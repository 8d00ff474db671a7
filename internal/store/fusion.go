package store

import "sort"

// rrfConstant is the standard RRF smoothing parameter (k=60, the same
// value used by Azure AI Search and OpenSearch's hybrid rerankers).
const rrfConstant = 60

type bm25Hit struct {
	id    string
	score float64
}

type vecHit struct {
	id       string
	distance float64
}

type fusedHit struct {
	id          string
	rrfScore    float64
	bm25Score   float64
	bm25Rank    int
	vecDistance float64
	vecRank     int
	inBoth      bool
}

// fuseRRF combines bm25 and vector result lists via reciprocal rank
// fusion: RRF_score(d) = sum(1 / (k + rank_i)) over every list d
// appears in. A document missing from one list is credited that
// list's contribution at rank max(len(bm25), len(vec)) + 1. Results
// are sorted by RRF score, then by appearing in both lists, then by
// BM25 score, then lexicographically by id, and capped at limit.
func fuseRRF(bm25 []bm25Hit, vec []vecHit, limit int) []fusedHit {
	if len(bm25) == 0 && len(vec) == 0 {
		return nil
	}

	scores := make(map[string]*fusedHit, len(bm25)+len(vec))
	get := func(id string) *fusedHit {
		if f, ok := scores[id]; ok {
			return f
		}
		f := &fusedHit{id: id}
		scores[id] = f
		return f
	}

	for rank, h := range bm25 {
		f := get(h.id)
		f.bm25Score = h.score
		f.bm25Rank = rank + 1
		f.rrfScore += 1.0 / float64(rrfConstant+rank+1)
	}

	for rank, h := range vec {
		f := get(h.id)
		f.vecDistance = h.distance
		f.vecRank = rank + 1
		f.rrfScore += 1.0 / float64(rrfConstant+rank+1)
		if f.bm25Rank > 0 {
			f.inBoth = true
		}
	}

	missingRank := len(bm25)
	if len(vec) > missingRank {
		missingRank = len(vec)
	}
	missingRank++

	for _, f := range scores {
		if f.bm25Rank == 0 && f.vecRank > 0 {
			f.rrfScore += 1.0 / float64(rrfConstant+missingRank)
		}
		if f.vecRank == 0 && f.bm25Rank > 0 {
			f.rrfScore += 1.0 / float64(rrfConstant+missingRank)
		}
	}

	out := make([]fusedHit, 0, len(scores))
	for _, f := range scores {
		out = append(out, *f)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.rrfScore != b.rrfScore {
			return a.rrfScore > b.rrfScore
		}
		if a.inBoth != b.inBoth {
			return a.inBoth
		}
		if a.bm25Score != b.bm25Score {
			return a.bm25Score > b.bm25Score
		}
		return a.id < b.id
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
