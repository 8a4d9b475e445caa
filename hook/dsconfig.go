package hook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AutoValue marks a config field deferred to automatic derivation from
// model or run context.
const AutoValue = "auto"

// ValueState classifies a config key: missing entirely, deferred to the
// reconciler, or explicitly set by the caller.
type ValueState int

const (
	Absent ValueState = iota
	Auto
	Explicit
)

// Config is the accelerator configuration: a nested JSON-like mapping
// addressed by dotted paths (e.g. "zero_optimization.reduce_bucket_size").
// Reconciliation fills "auto" placeholders and records mismatches between
// derived values and explicit ones; it never silently overrides an explicit
// caller choice.
type Config struct {
	raw        map[string]any
	mismatches []string
}

// NewConfig wraps an already-decoded mapping.
func NewConfig(raw map[string]any) *Config {
	if raw == nil {
		raw = map[string]any{}
	}
	return &Config{raw: raw}
}

// LoadConfig reads and decodes an accelerator JSON config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accelerator config %s: %w", path, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse accelerator config %s: %w", path, err)
	}
	return NewConfig(raw), nil
}

// ResolveConfigPath locates the config file: the literal path wins, then the
// path relative to the model directory. Neither existing is a hard error.
func ResolveConfigPath(path, modelDir string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	relative := filepath.Join(modelDir, path)
	if _, err := os.Stat(relative); err == nil {
		return relative, nil
	}
	return "", fmt.Errorf("no such accelerator config file: %q (also tried %q)", path, relative)
}

// Raw returns the underlying mapping. Callers hand it to the engine at
// construction time; mutating it afterwards is not supported.
func (c *Config) Raw() map[string]any { return c.raw }

// Get walks a dotted path through nested objects.
func (c *Config) Get(key string) (any, bool) {
	return nestedGet(c.raw, key)
}

// Has reports whether a key (or section) is present at all.
func (c *Config) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set assigns a dotted path, creating intermediate objects as needed.
func (c *Config) Set(key string, value any) {
	node := c.raw
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[part] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
}

// State reports the tri-state of a key.
func (c *Config) State(key string) ValueState {
	v, ok := c.Get(key)
	if !ok {
		return Absent
	}
	if s, ok := v.(string); ok && s == AutoValue {
		return Auto
	}
	return Explicit
}

// IsAuto reports whether a key currently holds the placeholder.
func (c *Config) IsAuto(key string) bool { return c.State(key) == Auto }

// fillOnly resolves a placeholder. Explicit values are never touched, so
// calling it twice (or on a pre-set key) is a no-op.
func (c *Config) fillOnly(key string, value any) {
	if c.State(key) == Auto {
		c.Set(key, value)
	}
}

// fillMatch resolves a placeholder, and records a mismatch when the key
// already holds an explicit value that disagrees with the derived one.
// Absent keys are left to the caller: an untouched section means the caller
// never opted into that feature.
func (c *Config) fillMatch(key string, value any, source string) {
	switch c.State(key) {
	case Auto:
		c.Set(key, value)
	case Explicit:
		current, _ := c.Get(key)
		if !looselyEqual(current, value) {
			c.mismatches = append(c.mismatches,
				fmt.Sprintf("- ds %s=%v vs trainer %s=%v", key, current, source, value))
		}
	case Absent:
	}
}

// Mismatches returns every conflict recorded so far, one line per key.
func (c *Config) Mismatches() []string { return c.mismatches }

// ZeroStage returns zero_optimization.stage, 0 when unset.
func (c *Config) ZeroStage() int {
	v, ok := c.Get("zero_optimization.stage")
	if !ok {
		return 0
	}
	f, ok := toFloat(v)
	if !ok {
		return 0
	}
	return int(f)
}

// IsZero3 reports whether the stage-3 memory optimization mode is active.
func (c *Config) IsZero3() bool { return c.ZeroStage() == 3 }

// IsOffload reports whether optimizer or parameter state is offloaded off
// the accelerator device.
func (c *Config) IsOffload() bool {
	for _, key := range []string{
		"zero_optimization.offload_optimizer.device",
		"zero_optimization.offload_param.device",
	} {
		if v, ok := c.Get(key); ok {
			if s, ok := v.(string); ok && s != "none" {
				return true
			}
		}
	}
	return false
}

// Process maps the training-arguments snapshot onto the config's standard
// keys. Placeholders are filled; explicit values that disagree with the
// snapshot are recorded as mismatches for Finalize to aggregate.
func (c *Config) Process(args Args) {
	c.fillMatch("train_micro_batch_size_per_gpu", args.BatchSizePerGPU, "batch_size_per_gpu")
	c.fillMatch("gradient_accumulation_steps", args.GradientAccumulationSteps, "gradient_accumulation_steps")
	c.fillMatch("train_batch_size",
		args.WorldSize*args.BatchSizePerGPU*args.GradientAccumulationSteps, "train_batch_size")
	c.fillMatch("gradient_clipping", args.ClipGrad, "clip_grad")

	c.fillMatch("optimizer.params.lr", args.LR, "lr")
	c.fillMatch("optimizer.params.betas", []any{args.AdamBeta1, args.AdamBeta2}, "adam_beta1+adam_beta2")
	c.fillMatch("optimizer.params.eps", args.AdamEpsilon, "adam_epsilon")
	c.fillMatch("optimizer.params.weight_decay", args.WeightDecay, "weight_decay")

	c.fillMatch("scheduler.params.warmup_min_lr", 0.0, "warmup_min_lr")
	c.fillMatch("scheduler.params.warmup_max_lr", args.LR, "lr")

	c.fillMatch("fp16.enabled", args.FP16, "use_fp16")
	if args.FP16Backend == "apex" {
		c.fillMatch("amp.enabled", args.FP16, "use_fp16+fp16_backend")
		c.fillMatch("amp.opt_level", args.FP16OptLevel, "fp16_opt_level")
	}
	c.fillMatch("bf16.enabled", args.BF16, "bf16")
}

// MarshalIndent renders the config as indented JSON.
func (c *Config) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(c.raw, "", "  ")
}

// looselyEqual compares scalars across JSON decodings, where every number
// arrives as float64 regardless of how this package later sets it.
func looselyEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// nestedGet is the shared dotted-path walker for plain decoded mappings.
func nestedGet(raw map[string]any, key string) (any, bool) {
	node := raw
	parts := strings.Split(key, ".")
	for i, part := range parts {
		v, ok := node[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		node = next
	}
	return nil, false
}
