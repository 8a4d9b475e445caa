package hook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveArgsDefaults(t *testing.T) {
	args := DeriveArgs(NewTrainerConfig(nil), 0)

	assert.Equal(t, 4, args.BatchSizePerGPU)
	assert.Equal(t, 1, args.GradientAccumulationSteps)
	assert.Equal(t, 1.0, args.ClipGrad)
	assert.Equal(t, 2e-5, args.LR)
	assert.Equal(t, 0.9, args.AdamBeta1)
	assert.Equal(t, 0.999, args.AdamBeta2)
	assert.Equal(t, 1e-8, args.AdamEpsilon)
	assert.Equal(t, 0.0, args.WeightDecay)
	assert.False(t, args.FP16)
	assert.Equal(t, "amp", args.FP16Backend)
	assert.Equal(t, "O1", args.FP16OptLevel)
	assert.False(t, args.BF16)
	assert.False(t, args.SaveOnEachNode)
	assert.Equal(t, 0, args.WarmupSteps)
	assert.Equal(t, 0.0, args.WarmupRatio)
	assert.Equal(t, 1, args.WorldSize)
}

func TestDeriveArgsFromConfig(t *testing.T) {
	cfg := NewTrainerConfig(map[string]any{
		"train": map[string]any{
			"dataloader": map[string]any{
				"batch_size_per_gpu": 8,
			},
			"gradient_accumulation_steps": 4,
			"clip_grad":                   0.5,
			"use_fp16":                    true,
			"fp16_backend":                "apex",
			"save_on_each_node":           true,
			"optimizer": map[string]any{
				"lr":           1e-4,
				"adam_beta1":   0.85,
				"weight_decay": 0.01,
				"options": map[string]any{
					"warmup": map[string]any{
						"warmup_steps": 5,
						"warmup_ratio": 0.1,
					},
				},
			},
		},
	})

	args := DeriveArgs(cfg, 8)
	assert.Equal(t, 8, args.BatchSizePerGPU)
	assert.Equal(t, 4, args.GradientAccumulationSteps)
	assert.Equal(t, 0.5, args.ClipGrad)
	assert.Equal(t, 1e-4, args.LR)
	assert.Equal(t, 0.85, args.AdamBeta1)
	assert.Equal(t, 0.999, args.AdamBeta2)
	assert.Equal(t, 0.01, args.WeightDecay)
	assert.True(t, args.FP16)
	assert.Equal(t, "apex", args.FP16Backend)
	assert.True(t, args.SaveOnEachNode)
	assert.Equal(t, 5, args.WarmupSteps)
	assert.Equal(t, 0.1, args.WarmupRatio)
	assert.Equal(t, 8, args.WorldSize)
}

func TestFP16OptLevelFromMixedPrecisionHookEntry(t *testing.T) {
	cfg := NewTrainerConfig(map[string]any{
		"train": map[string]any{
			"fp16_opt_level": "O3",
			"hooks": []any{
				map[string]any{"type": "CheckpointHook"},
				map[string]any{"type": "ApexAMPOptimizerHook", "opt_level": "O2"},
			},
		},
	})

	args := DeriveArgs(cfg, 1)
	assert.Equal(t, "O2", args.FP16OptLevel)
}

func TestFP16OptLevelFallsBackToConfigThenDefault(t *testing.T) {
	cfg := NewTrainerConfig(map[string]any{
		"train": map[string]any{
			"fp16_opt_level": "O3",
			"hooks": []any{
				map[string]any{"type": "CheckpointHook"},
			},
		},
	})
	assert.Equal(t, "O3", DeriveArgs(cfg, 1).FP16OptLevel)

	assert.Equal(t, "O1", DeriveArgs(NewTrainerConfig(nil), 1).FP16OptLevel)
}

func TestDeriveArgsClampsAccumulationSteps(t *testing.T) {
	cfg := NewTrainerConfig(map[string]any{
		"train": map[string]any{
			"gradient_accumulation_steps": 0,
		},
	})
	assert.Equal(t, 1, DeriveArgs(cfg, 1).GradientAccumulationSteps)
}
