package hook

// Tensor is a dense value exchanged with the engine: a model parameter in a
// state dict, or a loss handed to the backward pass.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// StateDict maps parameter names to their tensors.
type StateDict map[string]*Tensor

// ModelMeta is the structural metadata the config reconciler reads from a
// model. HiddenSize 0 and a nil HiddenSizes both mean "not exposed";
// heterogeneous models expose HiddenSizes and the largest entry wins.
type ModelMeta struct {
	HiddenSize  int
	HiddenSizes []int
}

// Module is the narrow model surface this package needs: checkpoint state in
// and out, plus the structural metadata for configuration.
type Module interface {
	StateDict() StateDict
	LoadStateDict(sd StateDict, strict bool) error
	Meta() ModelMeta
}

// ParamGroup is one optimizer parameter group.
type ParamGroup struct {
	LR          float64
	WeightDecay float64
}

// Optimizer exposes parameter groups for the learning-rate query.
type Optimizer interface {
	ParamGroups() []ParamGroup
}

// Scheduler advances the learning-rate schedule by one update.
type Scheduler interface {
	Step() error
}
