package hook

// Args is the flat training-arguments snapshot derived once per run from the
// trainer's nested configuration. Immutable after derivation.
type Args struct {
	BatchSizePerGPU           int
	GradientAccumulationSteps int
	ClipGrad                  float64
	LR                        float64
	AdamBeta1                 float64
	AdamBeta2                 float64
	AdamEpsilon               float64
	WeightDecay               float64
	FP16                      bool
	FP16Backend               string
	FP16OptLevel              string
	BF16                      bool
	SaveOnEachNode            bool
	WarmupSteps               int
	WarmupRatio               float64
	WorldSize                 int
}

// DeriveArgs reads the hyperparameters this hook cares about out of the
// trainer config, applying the documented defaults for anything unset.
func DeriveArgs(cfg *TrainerConfig, worldSize int) Args {
	if worldSize < 1 {
		worldSize = 1
	}
	args := Args{
		BatchSizePerGPU:           cfg.GetInt("train.dataloader.batch_size_per_gpu", 4),
		GradientAccumulationSteps: cfg.GetInt("train.gradient_accumulation_steps", 1),
		ClipGrad:                  cfg.GetFloat("train.clip_grad", 1.0),
		LR:                        cfg.GetFloat("train.optimizer.lr", 2e-5),
		AdamBeta1:                 cfg.GetFloat("train.optimizer.adam_beta1", 0.9),
		AdamBeta2:                 cfg.GetFloat("train.optimizer.adam_beta2", 0.999),
		AdamEpsilon:               cfg.GetFloat("train.optimizer.adam_epsilon", 1e-8),
		WeightDecay:               cfg.GetFloat("train.optimizer.weight_decay", 0.0),
		FP16:                      cfg.GetBool("train.use_fp16", false),
		FP16Backend:               cfg.GetString("train.fp16_backend", "amp"),
		BF16:                      cfg.GetBool("train.bf16", false),
		SaveOnEachNode:            cfg.GetBool("train.save_on_each_node", false),
		WarmupSteps:               cfg.GetInt("train.optimizer.options.warmup.warmup_steps", 0),
		WarmupRatio:               cfg.GetFloat("train.optimizer.options.warmup.warmup_ratio", 0.0),
		WorldSize:                 worldSize,
	}
	if args.GradientAccumulationSteps < 1 {
		args.GradientAccumulationSteps = 1
	}
	args.FP16OptLevel = deriveFP16OptLevel(cfg)
	return args
}

// deriveFP16OptLevel prefers the opt_level configured on a mixed-precision
// hook entry in train.hooks, then train.fp16_opt_level, then "O1".
func deriveFP16OptLevel(cfg *TrainerConfig) string {
	level := cfg.GetString("train.fp16_opt_level", "")
	if hooks, ok := cfg.GetList("train.hooks"); ok {
		for _, item := range hooks {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if entry["type"] != "ApexAMPOptimizerHook" {
				continue
			}
			if opt, ok := entry["opt_level"].(string); ok && opt != "" {
				level = opt
				break
			}
		}
	}
	if level == "" {
		level = "O1"
	}
	return level
}
