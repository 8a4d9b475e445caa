package hook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDottedGetSet(t *testing.T) {
	c := NewConfig(nil)
	c.Set("zero_optimization.reduce_bucket_size", 4096)

	v, ok := c.Get("zero_optimization.reduce_bucket_size")
	assert.True(t, ok)
	assert.Equal(t, 4096, v)

	_, ok = c.Get("zero_optimization.stage")
	assert.False(t, ok)
	_, ok = c.Get("zero_optimization.reduce_bucket_size.deeper")
	assert.False(t, ok)
}

func TestConfigTriState(t *testing.T) {
	c := NewConfig(map[string]any{
		"fp16": map[string]any{"enabled": "auto"},
		"zero_optimization": map[string]any{
			"stage": float64(3),
		},
	})

	assert.Equal(t, Auto, c.State("fp16.enabled"))
	assert.Equal(t, Explicit, c.State("zero_optimization.stage"))
	assert.Equal(t, Absent, c.State("scheduler.params.total_num_steps"))
	assert.True(t, c.IsAuto("fp16.enabled"))
	assert.False(t, c.IsAuto("zero_optimization.stage"))
}

func TestFillOnlyNeverClobbersExplicit(t *testing.T) {
	c := NewConfig(map[string]any{
		"zero_optimization": map[string]any{
			"reduce_bucket_size": float64(1234),
		},
	})

	c.fillOnly("zero_optimization.reduce_bucket_size", 4096*4096)
	v, _ := c.Get("zero_optimization.reduce_bucket_size")
	assert.Equal(t, float64(1234), v)

	// And it is idempotent on placeholders: the first fill resolves, the
	// second is a no-op.
	c.Set("zero_optimization.stage3_param_persistence_threshold", AutoValue)
	c.fillOnly("zero_optimization.stage3_param_persistence_threshold", 10)
	c.fillOnly("zero_optimization.stage3_param_persistence_threshold", 999)
	v, _ = c.Get("zero_optimization.stage3_param_persistence_threshold")
	assert.Equal(t, 10, v)
}

func TestFillMatchFillsAutoAndRecordsMismatch(t *testing.T) {
	c := NewConfig(map[string]any{
		"scheduler": map[string]any{
			"params": map[string]any{
				"total_num_steps":  "auto",
				"warmup_num_steps": float64(99),
			},
		},
	})

	c.fillMatch("scheduler.params.total_num_steps", 97, "num_training_steps")
	c.fillMatch("scheduler.params.warmup_num_steps", 10, "warmup_steps")

	v, _ := c.Get("scheduler.params.total_num_steps")
	assert.Equal(t, 97, v)
	require.Len(t, c.Mismatches(), 1)
	assert.Contains(t, c.Mismatches()[0], "scheduler.params.warmup_num_steps")
}

func TestFillMatchIgnoresAbsentKeys(t *testing.T) {
	c := NewConfig(nil)
	c.fillMatch("scheduler.params.total_num_steps", 97, "num_training_steps")
	assert.False(t, c.Has("scheduler.params.total_num_steps"))
	assert.Empty(t, c.Mismatches())
}

func TestFillMatchNumericEqualityAcrossDecodings(t *testing.T) {
	// JSON decoding yields float64 even for integral values; a matching int
	// must not count as a mismatch.
	c := NewConfig(map[string]any{
		"gradient_accumulation_steps": float64(2),
	})
	c.fillMatch("gradient_accumulation_steps", 2, "gradient_accumulation_steps")
	assert.Empty(t, c.Mismatches())
}

func TestZeroStageAndOffload(t *testing.T) {
	c := NewConfig(map[string]any{
		"zero_optimization": map[string]any{
			"stage": float64(3),
			"offload_optimizer": map[string]any{
				"device": "cpu",
			},
		},
	})
	assert.Equal(t, 3, c.ZeroStage())
	assert.True(t, c.IsZero3())
	assert.True(t, c.IsOffload())

	assert.Equal(t, 0, NewConfig(nil).ZeroStage())
	assert.False(t, NewConfig(map[string]any{
		"zero_optimization": map[string]any{
			"offload_param": map[string]any{"device": "none"},
		},
	}).IsOffload())
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	literal := writeJSONFile(t, dir, "ds_config.json", map[string]any{})

	got, err := ResolveConfigPath(literal, "")
	require.NoError(t, err)
	assert.Equal(t, literal, got)

	// Relative to the model dir.
	got, err = ResolveConfigPath("ds_config.json", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ds_config.json"), got)

	_, err = ResolveConfigPath("nope.json", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.json")
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestProcessFillsStandardKeys(t *testing.T) {
	c := NewConfig(map[string]any{
		"train_micro_batch_size_per_gpu": "auto",
		"gradient_clipping":              "auto",
		"optimizer": map[string]any{
			"type": "AdamW",
			"params": map[string]any{
				"lr":    "auto",
				"betas": "auto",
			},
		},
		"fp16": map[string]any{"enabled": "auto"},
		"bf16": map[string]any{"enabled": "auto"},
	})

	args := Args{
		BatchSizePerGPU:           4,
		GradientAccumulationSteps: 2,
		ClipGrad:                  1.0,
		LR:                        2e-5,
		AdamBeta1:                 0.9,
		AdamBeta2:                 0.999,
		FP16:                      true,
		FP16Backend:               "amp",
		BF16:                      false,
		WorldSize:                 2,
	}
	c.Process(args)

	v, _ := c.Get("train_micro_batch_size_per_gpu")
	assert.Equal(t, 4, v)
	v, _ = c.Get("gradient_clipping")
	assert.Equal(t, 1.0, v)
	v, _ = c.Get("optimizer.params.lr")
	assert.Equal(t, 2e-5, v)
	v, _ = c.Get("optimizer.params.betas")
	assert.Equal(t, []any{0.9, 0.999}, v)
	v, _ = c.Get("fp16.enabled")
	assert.Equal(t, true, v)
	v, _ = c.Get("bf16.enabled")
	assert.Equal(t, false, v)
	assert.Empty(t, c.Mismatches())
}

func TestProcessApexBackendControlsAmpSection(t *testing.T) {
	c := NewConfig(map[string]any{
		"amp": map[string]any{"enabled": "auto", "opt_level": "auto"},
	})
	args := Args{FP16: true, FP16Backend: "apex", FP16OptLevel: "O2",
		BatchSizePerGPU: 4, GradientAccumulationSteps: 1, WorldSize: 1}
	c.Process(args)

	v, _ := c.Get("amp.enabled")
	assert.Equal(t, true, v)
	v, _ = c.Get("amp.opt_level")
	assert.Equal(t, "O2", v)

	// With the default amp backend the section stays untouched.
	c2 := NewConfig(map[string]any{
		"amp": map[string]any{"enabled": "auto"},
	})
	args.FP16Backend = "amp"
	c2.Process(args)
	assert.True(t, c2.IsAuto("amp.enabled"))
}
