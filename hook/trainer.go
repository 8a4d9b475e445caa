package hook

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// TrainerConfig is the trainer's nested configuration, addressed with dotted
// paths like the accelerator config but without placeholder semantics.
type TrainerConfig struct {
	raw map[string]any
}

// NewTrainerConfig wraps an already-decoded mapping.
func NewTrainerConfig(raw map[string]any) *TrainerConfig {
	if raw == nil {
		raw = map[string]any{}
	}
	return &TrainerConfig{raw: raw}
}

// LoadTrainerConfig decodes a trainer YAML config file.
func LoadTrainerConfig(path string) (*TrainerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trainer config %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse trainer config %s: %w", path, err)
	}
	return NewTrainerConfig(raw), nil
}

// Raw returns the underlying mapping.
func (c *TrainerConfig) Raw() map[string]any { return c.raw }

// Get walks a dotted path through nested objects.
func (c *TrainerConfig) Get(key string) (any, bool) {
	return nestedGet(c.raw, key)
}

// GetInt returns the int at key, or def when absent or not numeric.
func (c *TrainerConfig) GetInt(key string, def int) int {
	if v, ok := c.Get(key); ok {
		if f, ok := toFloat(v); ok {
			return int(f)
		}
	}
	return def
}

// GetFloat returns the float at key, or def.
func (c *TrainerConfig) GetFloat(key string, def float64) float64 {
	if v, ok := c.Get(key); ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return def
}

// GetBool returns the bool at key, or def.
func (c *TrainerConfig) GetBool(key string, def bool) bool {
	if v, ok := c.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// GetString returns the string at key, or def.
func (c *TrainerConfig) GetString(key string, def string) string {
	if v, ok := c.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// GetList returns the list at key.
func (c *TrainerConfig) GetList(key string) ([]any, bool) {
	if v, ok := c.Get(key); ok {
		if list, ok := v.([]any); ok {
			return list, true
		}
	}
	return nil, false
}

// Trainer is the narrow surface of the generic trainer this hook borrows.
// The Model, Optimizer, and Scheduler slots are rebound exactly once during
// setup and read-only from this hook's perspective afterwards.
type Trainer struct {
	Cfg             *TrainerConfig
	Model           Module
	Optimizer       Optimizer
	NamedOptimizers map[string]Optimizer
	Scheduler       Scheduler
	Engine          Engine
	ItersPerEpoch   int
	MaxEpochs       int
	TrainOutputs    map[string]*Tensor
	ModelDir        string
	WorldSize       int
	Logger          *logrus.Entry

	// Unwrap strips framework wrappers from a module. Nil means the module
	// is already bare.
	Unwrap func(Module) Module
}

// UnwrapModule returns the bare module underneath any wrapper.
func (t *Trainer) UnwrapModule(m Module) Module {
	if t.Unwrap != nil {
		return t.Unwrap(m)
	}
	return m
}

func (t *Trainer) log() *logrus.Entry {
	if t.Logger != nil {
		return t.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
