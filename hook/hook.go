package hook

import (
	"errors"
	"fmt"
	"math"
)

// ownerName identifies this hook in registry provenance and logs.
const ownerName = "ZeroHook"

// ErrNoOptimizer is returned by the learning-rate query when the trainer has
// neither a single nor a named optimizer.
var ErrNoOptimizer = errors.New("lr is not applicable because optimizer does not exist")

// LearningRates is the result of the current-learning-rate query: group
// rates for a single optimizer, or per-name group rates when the trainer
// carries a mapping of named optimizers. Exactly one field is set.
type LearningRates struct {
	Groups []float64
	Named  map[string][]float64
}

// Hook wires an accelerator engine into the generic trainer's run lifecycle.
// It owns its configuration state; the trainer, model, and optimizer are
// borrowed references rebound in place during setup.
type Hook struct {
	// ConfigPath locates the accelerator JSON config, either literally or
	// relative to the trainer's model directory.
	ConfigPath string

	// SaveZeroCheckpoint also keeps the partitioned optimizer state on save.
	SaveZeroCheckpoint bool

	// ActivationCheckpointing enables the engine's activation recompute.
	ActivationCheckpointing bool

	// EngineInit constructs the engine; the accelerator library supplies it.
	EngineInit EngineInitializer

	rank        RankInfo
	config      *Config
	args        Args
	wrapped     bool
	initialized bool
}

// New builds a hook reading its accelerator configuration from configPath
// and constructing engines with engineInit.
func New(configPath string, engineInit EngineInitializer) *Hook {
	return &Hook{
		ConfigPath:              configPath,
		ActivationCheckpointing: true,
		EngineInit:              engineInit,
		rank:                    SingleProcess{},
	}
}

// SetRankInfo replaces the default single-process topology provider.
func (h *Hook) SetRankInfo(r RankInfo) { h.rank = r }

// Config returns the resolved accelerator configuration, nil before setup.
func (h *Hook) Config() *Config { return h.config }

// Wrapped reports whether module wrapping has been claimed by the engine.
func (h *Hook) Wrapped() bool { return h.wrapped }

// RegisterStrategy redirects the trainer's extension points to their
// accelerator-native implementations. Install once, before the run starts.
func (h *Hook) RegisterStrategy(reg *Registry) {
	reg.Overload(ExtBackward, ownerName, func(e *Extensions) { e.Backward = h.Backward })
	reg.Overload(ExtInitializeOptimizer, ownerName, func(e *Extensions) { e.InitializeOptimizer = h.idle })
	reg.Overload(ExtSchedulerStep, ownerName, func(e *Extensions) { e.SchedulerStep = h.idle })
	reg.Overload(ExtCurrentLR, ownerName, func(e *Extensions) { e.CurrentLR = h.CurrentLR })
	reg.Overload(ExtSaveCheckpoints, ownerName, func(e *Extensions) { e.SaveCheckpoints = h.SaveCheckpoints })
	reg.Overload(ExtLoadCheckpoints, ownerName, func(e *Extensions) { e.LoadCheckpoints = h.LoadCheckpoints })
	reg.Overload(ExtRemoveCheckpoints, ownerName, func(e *Extensions) { e.RemoveCheckpoints = h.RemoveCheckpoints })
	reg.Overload(ExtPrepareOutput, ownerName, func(e *Extensions) { e.PrepareOutput = h.PrepareOutput })
	reg.Overload(ExtWrapModule, ownerName, func(e *Extensions) { e.WrapModule = h.WrapModule })
	reg.Overload(ExtShouldSaveOnRank, ownerName, func(e *Extensions) { e.ShouldSaveOnRank = h.ShouldSaveOnRank })
}

// BeforeRun performs the one-time setup: derive the training arguments,
// reconcile the accelerator config, decide optimizer/scheduler ownership,
// construct the engine, and rebind the trainer's references to the engine's
// versions. Any failure before engine construction aborts the run with no
// partial state to roll back.
func (h *Hook) BeforeRun(tr *Trainer) error {
	if h.initialized {
		return fmt.Errorf("accelerator hook already initialized; BeforeRun must run exactly once")
	}
	h.args = DeriveArgs(tr.Cfg, tr.WorldSize)

	updatesPerEpoch := float64(tr.ItersPerEpoch) / float64(h.args.GradientAccumulationSteps)
	maxSteps := int(math.Ceil(float64(tr.MaxEpochs) * updatesPerEpoch))

	cfg, err := h.resolveConfig(tr, maxSteps)
	if err != nil {
		return err
	}

	optimizer, scheduler := h.delegation(tr, cfg)
	if h.EngineInit == nil {
		return fmt.Errorf("no engine initializer configured")
	}
	engine, err := h.EngineInit(InitParams{
		Module:    tr.Model,
		Optimizer: optimizer,
		Scheduler: scheduler,
		Config:    cfg.Raw(),
	})
	if err != nil {
		return fmt.Errorf("initialize accelerator engine: %w", err)
	}

	h.config = cfg
	tr.Engine = engine
	tr.Model = engine.Module()
	tr.Optimizer = engine.Optimizer()
	tr.Scheduler = engine.Scheduler()
	h.initialized = true
	tr.log().Infof("accelerator engine initialized: %d optimization steps over %d epochs",
		maxSteps, tr.MaxEpochs)
	return nil
}

// BeforeVal is intentionally empty: evaluation runs on whatever the engine
// already holds.
func (h *Hook) BeforeVal(tr *Trainer) {}

// resolveConfig loads, processes, and finalizes the accelerator config.
func (h *Hook) resolveConfig(tr *Trainer, maxSteps int) (*Config, error) {
	path, err := ResolveConfigPath(h.ConfigPath, tr.ModelDir)
	if err != nil {
		return nil, err
	}
	tr.log().Infof("loading accelerator config from %s", path)
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.Process(h.args)
	if err := cfg.Finalize(h.args, tr.Model.Meta(), maxSteps); err != nil {
		return nil, err
	}
	return cfg, nil
}

// delegation decides whether the engine or the trainer owns optimizer and
// scheduler construction. A config block wins; otherwise the trainer's own
// object is handed to the engine, which voids the accelerator's optimizer
// warranty via zero_allow_untested_optimizer.
func (h *Hook) delegation(tr *Trainer, cfg *Config) (Optimizer, Scheduler) {
	var optimizer Optimizer
	if !cfg.Has("optimizer") {
		if cfg.IsOffload() {
			tr.log().Info("detected ZeRO offload with a non-accelerator optimizer: " +
				"this works as long as the custom optimizer has both CPU and GPU implementations")
		}
		optimizer = tr.Optimizer
		cfg.Set("zero_allow_untested_optimizer", true)
	}
	var scheduler Scheduler
	if !cfg.Has("scheduler") {
		scheduler = tr.Scheduler
	}
	return optimizer, scheduler
}

// Backward runs the accelerator-native backward pass for every named loss,
// then steps the engine. The engine owns gradient accumulation, clipping,
// and the optimizer step, so the trainer-supplied values are ignored.
func (h *Hook) Backward(tr *Trainer, lossKeys []string, cumulativeIters int, gradClip float64) error {
	if tr.Engine == nil {
		return fmt.Errorf("backward called before engine construction")
	}
	for _, key := range lossKeys {
		loss, ok := tr.TrainOutputs[key]
		if !ok {
			return fmt.Errorf("loss %q not found in train outputs", key)
		}
		if err := tr.Engine.Backward(loss); err != nil {
			return fmt.Errorf("backward for loss %q: %w", key, err)
		}
	}
	if err := tr.Engine.Step(); err != nil {
		return fmt.Errorf("engine step: %w", err)
	}
	return nil
}

// idle replaces extension points the engine already owns.
func (h *Hook) idle(tr *Trainer) error { return nil }

// CurrentLR reads learning rates from the optimizer's parameter groups,
// supporting both a single optimizer and a mapping of named optimizers.
func (h *Hook) CurrentLR(tr *Trainer) (LearningRates, error) {
	if len(tr.NamedOptimizers) > 0 {
		named := make(map[string][]float64, len(tr.NamedOptimizers))
		for name, opt := range tr.NamedOptimizers {
			named[name] = groupRates(opt)
		}
		return LearningRates{Named: named}, nil
	}
	if tr.Optimizer != nil {
		return LearningRates{Groups: groupRates(tr.Optimizer)}, nil
	}
	return LearningRates{}, ErrNoOptimizer
}

func groupRates(opt Optimizer) []float64 {
	groups := opt.ParamGroups()
	rates := make([]float64, len(groups))
	for i, g := range groups {
		rates[i] = g.LR
	}
	return rates
}

// WrapModule is a no-op: the engine performs its own distributed wrapping.
func (h *Hook) WrapModule(tr *Trainer) error {
	h.wrapped = true
	return nil
}

// ShouldSaveOnRank is always true: every rank participates in the engine's
// own sharded save.
func (h *Hook) ShouldSaveOnRank(tr *Trainer) bool { return true }
