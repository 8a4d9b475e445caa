package cmd

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zerohook/zerohook/hook"
)

var (
	dsConfigPath      string // Path to the accelerator JSON config
	trainerConfigPath string // Path to the trainer YAML config
	modelDir          string // Model directory for relative config resolution
	hiddenSize        int    // Model hidden dimension
	hiddenSizes       []int  // Per-submodel hidden dimensions
	itersPerEpoch     int    // Training iterations per epoch
	maxEpochs         int    // Total training epochs
	worldSize         int    // Data-parallel world size
)

// validateCmd runs the config reconciler offline and prints the resolved
// config, so a bad accelerator config fails here instead of at run time.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Reconcile an accelerator config against trainer settings offline",
	Run: func(cmd *cobra.Command, args []string) {
		if dsConfigPath == "" {
			logrus.Fatalf("Accelerator config path not provided. Use --ds-config.")
		}

		path, err := hook.ResolveConfigPath(dsConfigPath, modelDir)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("Loading accelerator config from %s", path)

		trainerCfg := hook.NewTrainerConfig(nil)
		if trainerConfigPath != "" {
			trainerCfg, err = hook.LoadTrainerConfig(trainerConfigPath)
			if err != nil {
				logrus.Fatalf("%v", err)
			}
		}

		cfg, err := hook.LoadConfig(path)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		trainArgs := hook.DeriveArgs(trainerCfg, worldSize)
		cfg.Process(trainArgs)

		updatesPerEpoch := float64(itersPerEpoch) / float64(trainArgs.GradientAccumulationSteps)
		maxSteps := int(math.Ceil(float64(maxEpochs) * updatesPerEpoch))

		meta := hook.ModelMeta{HiddenSize: hiddenSize, HiddenSizes: hiddenSizes}
		if err := cfg.Finalize(trainArgs, meta, maxSteps); err != nil {
			logrus.Fatalf("%v", err)
		}

		out, err := cfg.MarshalIndent()
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		fmt.Println(string(out))
	},
}

func init() {
	validateCmd.Flags().StringVar(&dsConfigPath, "ds-config", "", "Path to the accelerator JSON config")
	validateCmd.Flags().StringVar(&trainerConfigPath, "trainer-config", "", "Path to the trainer YAML config")
	validateCmd.Flags().StringVar(&modelDir, "model-dir", "", "Model directory for relative config resolution")
	validateCmd.Flags().IntVar(&hiddenSize, "hidden-size", 0, "Model hidden dimension")
	validateCmd.Flags().IntSliceVar(&hiddenSizes, "hidden-sizes", nil, "Per-submodel hidden dimensions (largest wins)")
	validateCmd.Flags().IntVar(&itersPerEpoch, "iters-per-epoch", 1, "Training iterations per epoch")
	validateCmd.Flags().IntVar(&maxEpochs, "max-epochs", 1, "Total training epochs")
	validateCmd.Flags().IntVar(&worldSize, "world-size", 1, "Data-parallel world size")
}
