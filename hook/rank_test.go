package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankQualifierSingleProcess(t *testing.T) {
	assert.Equal(t, "", RankQualifier(SingleProcess{}))
	assert.Equal(t, "", RankQualifier(nil))
}

func TestRankQualifierTensorParallel(t *testing.T) {
	assert.Equal(t, "_mp_rank_02", RankQualifier(FixedRank{World: 4, Rank: 2}))
	assert.Equal(t, "_mp_rank_00", RankQualifier(FixedRank{World: 2, Rank: 0}))
	assert.Equal(t, "", RankQualifier(FixedRank{World: 1, Rank: 0}))
}

func TestRankQualifierDegradesOnLookupFailure(t *testing.T) {
	assert.Equal(t, "", RankQualifier(brokenRank{}))
}

func TestShardStatesFile(t *testing.T) {
	assert.Equal(t, "mp_rank_00_model_states.pt", ShardStatesFile(SingleProcess{}))
	assert.Equal(t, "mp_rank_02_model_states.pt", ShardStatesFile(FixedRank{World: 4, Rank: 2}))
	assert.Equal(t, "mp_rank_00_model_states.pt", ShardStatesFile(brokenRank{}))
	assert.Equal(t, "mp_rank_00_model_states.pt", ShardStatesFile(nil))
}
