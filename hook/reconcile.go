package hook

import (
	"fmt"
	"math"
	"strings"
)

// hiddenSizeAutoKeys are the placeholders derived from the model's hidden
// dimension. Each is the target of exactly one fill rule.
var hiddenSizeAutoKeys = []string{
	"zero_optimization.reduce_bucket_size",
	"zero_optimization.stage3_prefetch_bucket_size",
	"zero_optimization.stage3_param_persistence_threshold",
}

// Finalize completes the configuration once the model and the total number
// of optimization steps are known. It fills the hidden-size-derived buffer
// sizes, resolves scheduler warmup and total-step counts, and fails with a
// single aggregated error when explicit values disagree with derived ones.
func (c *Config) Finalize(args Args, meta ModelMeta, numTrainingSteps int) error {
	var autoKeys []string
	for _, key := range hiddenSizeAutoKeys {
		if c.IsAuto(key) {
			autoKeys = append(autoKeys, key)
		}
	}
	if len(autoKeys) > 0 {
		hiddenSize, err := resolveHiddenSize(meta, autoKeys)
		if err != nil {
			return err
		}
		c.fillOnly("zero_optimization.reduce_bucket_size", hiddenSize*hiddenSize)
		if c.IsZero3() {
			c.fillOnly("zero_optimization.stage3_prefetch_bucket_size",
				0.9*float64(hiddenSize)*float64(hiddenSize))
			c.fillOnly("zero_optimization.stage3_param_persistence_threshold", 10*hiddenSize)
		}
	}

	// An explicit warmup step count wins over the ratio; ratio-based warmup
	// rounds up, never down.
	warmupSteps := args.WarmupSteps
	if warmupSteps <= 0 {
		warmupSteps = int(math.Ceil(float64(numTrainingSteps) * args.WarmupRatio))
	}
	c.fillMatch("scheduler.params.total_num_steps", numTrainingSteps, "num_training_steps")
	c.fillMatch("scheduler.params.warmup_num_steps", warmupSteps, "warmup_steps")

	if len(c.mismatches) > 0 {
		return fmt.Errorf(
			"please correct the following accelerator config values that mismatch the training arguments:\n%s\n"+
				"The easiest method is to set these config values to 'auto'",
			strings.Join(c.mismatches, "\n"))
	}
	return nil
}

// resolveHiddenSize picks the model's hidden dimension: the scalar size when
// exposed, else the largest of the per-submodel sizes. autoKeys is only used
// to name the placeholders that cannot be resolved.
func resolveHiddenSize(meta ModelMeta, autoKeys []string) (int, error) {
	if meta.HiddenSize > 0 {
		return meta.HiddenSize, nil
	}
	if len(meta.HiddenSizes) > 0 {
		largest := meta.HiddenSizes[0]
		for _, h := range meta.HiddenSizes[1:] {
			if h > largest {
				largest = h
			}
		}
		return largest, nil
	}
	return 0, fmt.Errorf(
		"the model exposes neither `hidden_size` nor `hidden_sizes`, so the following `auto` entries "+
			"in the accelerator config cannot be filled automatically: %v. "+
			"Replace `auto` for these keys with an integer value of your choice",
		autoKeys)
}
