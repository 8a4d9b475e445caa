package hook

// LoadOptions controls how the engine restores a checkpoint.
type LoadOptions struct {
	// ModuleStrict requires every module key to match on load.
	ModuleStrict bool
	// ModuleOnly skips optimizer and scheduler state, restoring weights only.
	ModuleOnly bool
}

// Engine is the accelerator's runtime object wrapping the model, optimizer,
// and scheduler for distributed execution. Its sharding and optimization
// internals are opaque to this package.
type Engine interface {
	Backward(loss *Tensor) error
	Step() error
	Module() Module
	Optimizer() Optimizer
	Scheduler() Scheduler
	SaveCheckpoint(dir, tag string) error
	LoadCheckpoint(dir, tag string, opts LoadOptions) error
}

// InitParams carries everything the accelerator needs to build an Engine.
// Optimizer and Scheduler are nil when the resolved config carries its own
// optimizer/scheduler block, in which case the engine owns construction.
type InitParams struct {
	Module    Module
	Optimizer Optimizer
	Scheduler Scheduler
	Config    map[string]any
}

// EngineInitializer constructs the engine. The accelerator library supplies
// it; tests inject fakes.
type EngineInitializer func(InitParams) (Engine, error)
