package hook

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// RankInfo exposes the tensor-parallel topology this worker belongs to.
// Lookups may fail when the parallel infrastructure is not initialized, e.g.
// in single-process validation tooling or tests.
type RankInfo interface {
	TensorParallelWorldSize() (int, error)
	TensorParallelRank() (int, error)
}

// SingleProcess is the topology of a run without tensor parallelism.
type SingleProcess struct{}

func (SingleProcess) TensorParallelWorldSize() (int, error) { return 1, nil }
func (SingleProcess) TensorParallelRank() (int, error)      { return 0, nil }

// FixedRank is a static topology, used by offline tooling that inspects
// another worker's checkpoint shards.
type FixedRank struct {
	World int
	Rank  int
}

func (f FixedRank) TensorParallelWorldSize() (int, error) { return f.World, nil }
func (f FixedRank) TensorParallelRank() (int, error)      { return f.Rank, nil }

// RankQualifier returns the suffix identifying this worker's shard of a
// checkpoint: empty at width 1, "_mp_rank_NN" otherwise. An uninitialized
// topology degrades to the empty qualifier rather than failing; the lookup
// error is logged at debug level so a real initialization problem stays
// observable.
func RankQualifier(r RankInfo) string {
	if r == nil {
		return ""
	}
	width, err := r.TensorParallelWorldSize()
	if err != nil {
		logrus.Debugf("tensor-parallel world size unavailable, using empty rank qualifier: %v", err)
		return ""
	}
	if width == 1 {
		return ""
	}
	rank, err := r.TensorParallelRank()
	if err != nil {
		logrus.Debugf("tensor-parallel rank unavailable, using empty rank qualifier: %v", err)
		return ""
	}
	return fmt.Sprintf("_mp_rank_%02d", rank)
}

// ShardStatesFile names this worker's flat model-states file inside an
// engine checkpoint directory. Rank 0 when the topology is unavailable.
func ShardStatesFile(r RankInfo) string {
	rank := 0
	if r != nil {
		if mp, err := r.TensorParallelRank(); err == nil {
			rank = mp
		}
	}
	return fmt.Sprintf("mp_rank_%02d_model_states.pt", rank)
}
