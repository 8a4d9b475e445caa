package hook

import "github.com/sirupsen/logrus"

// Extension point identifiers. Names follow the trainer's
// "<hook>.<extension>" convention so override provenance reads naturally.
const (
	ExtBackward            = "OptimizerHook.backward"
	ExtInitializeOptimizer = "OptimizerHook.initialize_optimizer"
	ExtSchedulerStep       = "LrSchedulerHook.step"
	ExtCurrentLR           = "LrSchedulerHook.get_current_lr"
	ExtSaveCheckpoints     = "CheckpointHook.save_checkpoints"
	ExtLoadCheckpoints     = "LoadCheckpointHook.load_checkpoints"
	ExtRemoveCheckpoints   = "CheckpointHook.remove_checkpoints"
	ExtPrepareOutput       = "CheckpointHook.prepare_output"
	ExtWrapModule          = "DDPHook.wrap_module"
	ExtShouldSaveOnRank    = "CheckpointHook.should_save_on_rank"
)

// Extensions holds the active implementation of every extension point the
// trainer dispatches through. A nil field means the trainer's built-in
// behavior applies.
type Extensions struct {
	Backward            func(tr *Trainer, lossKeys []string, cumulativeIters int, gradClip float64) error
	InitializeOptimizer func(tr *Trainer) error
	SchedulerStep       func(tr *Trainer) error
	CurrentLR           func(tr *Trainer) (LearningRates, error)
	SaveCheckpoints     func(tr *Trainer, prefix string, state *TrainerState) error
	LoadCheckpoints     func(prefix string, tr *Trainer, loadAllState, strict bool) (*TrainerState, error)
	RemoveCheckpoints   func(tr *Trainer, prefix string) error
	PrepareOutput       func(tr *Trainer, outputDir string) error
	WrapModule          func(tr *Trainer) error
	ShouldSaveOnRank    func(tr *Trainer) bool
}

// Registry resolves extension points to their active implementations once at
// setup time. There is no runtime patching: a later registration for the
// same point simply wins, and every takeover is logged.
type Registry struct {
	Ext    Extensions
	owners map[string]string
}

// NewRegistry returns an empty registry; the trainer's built-in hooks apply
// until something overloads them.
func NewRegistry() *Registry {
	return &Registry{owners: map[string]string{}}
}

// Overload installs a replacement for one extension point and records which
// hook owns it now. Entries live for the whole training run.
func (r *Registry) Overload(point, owner string, install func(*Extensions)) {
	if prev, ok := r.owners[point]; ok && prev != owner {
		logrus.Debugf("extension point %s: %s overrides %s", point, owner, prev)
	}
	r.owners[point] = owner
	install(&r.Ext)
}

// Owner reports which hook currently owns an extension point.
func (r *Registry) Owner(point string) (string, bool) {
	owner, ok := r.owners[point]
	return owner, ok
}
