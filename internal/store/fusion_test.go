package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseRRF_EmptyInputs_ReturnsNil(t *testing.T) {
	assert.Nil(t, fuseRRF(nil, nil, 10))
}

func TestFuseRRF_DocumentInBothLists_RanksAboveSingleList(t *testing.T) {
	bm25 := []bm25Hit{{id: "a", score: 5}, {id: "b", score: 4}}
	vec := []vecHit{{id: "a", distance: 0.1}, {id: "c", distance: 0.2}}

	fused := fuseRRF(bm25, vec, 10)
	require.NotEmpty(t, fused)
	assert.Equal(t, "a", fused[0].id)
	assert.True(t, fused[0].inBoth)
}

func TestFuseRRF_SingleListOrdersByRank(t *testing.T) {
	bm25 := []bm25Hit{{id: "z", score: 9}, {id: "a", score: 1}}
	vec := []vecHit{}

	fused := fuseRRF(bm25, vec, 10)
	require.Len(t, fused, 2)
	// Same rank-1-vs-rank-2 RRF scores differ (rank matters), but both
	// are bm25-only, so their RRF scores are strictly ordered by rank.
	assert.Equal(t, "z", fused[0].id)
	assert.Equal(t, "a", fused[1].id)
}

func TestFuseRRF_EqualRRFScore_PrefersBothListsThenHigherBM25ThenLowerID(t *testing.T) {
	bm25 := []bm25Hit{{id: "only-bm25", score: 100}}
	vec := []vecHit{{id: "only-vec", distance: 0.01}}

	// Both appear at rank 1 in their own single list, so their RRF
	// contributions plus missing-rank credit should tie exactly.
	fused := fuseRRF(bm25, vec, 10)
	require.Len(t, fused, 2)
	assert.InDelta(t, fused[0].rrfScore, fused[1].rrfScore, 1e-9)
	// Neither is in both lists, so the tie-break falls to BM25 score:
	// "only-bm25" carries a real score, "only-vec" never set one (zero value).
	assert.Equal(t, "only-bm25", fused[0].id)
	assert.Equal(t, "only-vec", fused[1].id)
}

func TestFuseRRF_RespectsLimit(t *testing.T) {
	bm25 := []bm25Hit{{id: "a", score: 3}, {id: "b", score: 2}, {id: "c", score: 1}}
	fused := fuseRRF(bm25, nil, 2)
	assert.Len(t, fused, 2)
}

func TestFuseRRF_MissingRankUsesMaxListLengthPlusOne(t *testing.T) {
	bm25 := []bm25Hit{{id: "a", score: 1}, {id: "b", score: 1}, {id: "c", score: 1}}
	vec := []vecHit{{id: "only-vec", distance: 0.5}}

	fused := fuseRRF(bm25, vec, 10)
	var onlyVec fusedHit
	for _, f := range fused {
		if f.id == "only-vec" {
			onlyVec = f
		}
	}
	// missing_rank = max(3,1)+1 = 4, so bm25 contribution is 1/(60+4).
	expected := 1.0/float64(rrfConstant+1) + 1.0/float64(rrfConstant+4)
	assert.InDelta(t, expected, onlyVec.rrfScore, 1e-9)
}
