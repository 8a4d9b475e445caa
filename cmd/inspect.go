package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zerohook/zerohook/hook"
)

var (
	inspectPrefix string // Logical checkpoint path prefix
	tpWorld       int    // Tensor-parallel width used when the checkpoint was written
	tpRank        int    // Tensor-parallel rank to inspect
)

// inspectCmd reports which artifacts of a logical checkpoint exist on disk.
// Read-only; useful when a resume fails and the question is which half of
// the checkpoint (trainer state vs engine shards) went missing.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report which artifacts of a logical checkpoint exist",
	Run: func(cmd *cobra.Command, args []string) {
		if inspectPrefix == "" {
			logrus.Fatalf("Checkpoint prefix not provided. Use --prefix.")
		}
		rank := hook.FixedRank{World: tpWorld, Rank: tpRank}

		stateFile := inspectPrefix + hook.RankQualifier(rank) + hook.TrainerStateSuffix
		shardFile := filepath.Join(inspectPrefix, hook.ShardStatesFile(rank))

		fmt.Printf("checkpoint %s\n", inspectPrefix)
		fmt.Printf("  trainer state %-60s %s\n", stateFile, presence(stateFile))
		fmt.Printf("  engine dir    %-60s %s\n", inspectPrefix, presence(inspectPrefix))
		fmt.Printf("  model states  %-60s %s\n", shardFile, presence(shardFile))
	},
}

func presence(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "MISSING"
	}
	return "ok"
}

func init() {
	inspectCmd.Flags().StringVar(&inspectPrefix, "prefix", "", "Logical checkpoint path prefix")
	inspectCmd.Flags().IntVar(&tpWorld, "tp-world", 1, "Tensor-parallel width used when saving")
	inspectCmd.Flags().IntVar(&tpRank, "tp-rank", 0, "Tensor-parallel rank to inspect")
}
