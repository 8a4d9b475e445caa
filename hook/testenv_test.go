package hook

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeModule implements Module with an in-memory state dict.
type fakeModule struct {
	sd   StateDict
	meta ModelMeta

	loaded StateDict
	strict bool
}

func (m *fakeModule) StateDict() StateDict { return m.sd }

func (m *fakeModule) LoadStateDict(sd StateDict, strict bool) error {
	m.loaded = sd
	m.strict = strict
	return nil
}

func (m *fakeModule) Meta() ModelMeta { return m.meta }

type fakeOptimizer struct {
	groups []ParamGroup
}

func (o *fakeOptimizer) ParamGroups() []ParamGroup { return o.groups }

type fakeScheduler struct {
	steps int
}

func (s *fakeScheduler) Step() error {
	s.steps++
	return nil
}

type engineLoad struct {
	dir, tag string
	opts     LoadOptions
}

// fakeEngine records every interaction and materializes checkpoint
// directories on save so the bridge's filesystem contract can be verified.
type fakeEngine struct {
	module    Module
	optimizer Optimizer
	scheduler Scheduler

	backwards []*Tensor
	steps     int
	saves     []engineLoad
	loads     []engineLoad
}

func newFakeEngine(p InitParams) (Engine, error) {
	e := &fakeEngine{
		module:    p.Module,
		optimizer: p.Optimizer,
		scheduler: p.Scheduler,
	}
	if e.optimizer == nil {
		e.optimizer = &fakeOptimizer{groups: []ParamGroup{{LR: 3e-4}}}
	}
	if e.scheduler == nil {
		e.scheduler = &fakeScheduler{}
	}
	return e, nil
}

func (e *fakeEngine) Backward(loss *Tensor) error {
	e.backwards = append(e.backwards, loss)
	return nil
}

func (e *fakeEngine) Step() error {
	e.steps++
	return nil
}

func (e *fakeEngine) Module() Module       { return e.module }
func (e *fakeEngine) Optimizer() Optimizer { return e.optimizer }
func (e *fakeEngine) Scheduler() Scheduler { return e.scheduler }

func (e *fakeEngine) SaveCheckpoint(dir, tag string) error {
	if err := os.MkdirAll(filepath.Join(dir, tag), 0o755); err != nil {
		return err
	}
	e.saves = append(e.saves, engineLoad{dir: dir, tag: tag})
	return nil
}

func (e *fakeEngine) LoadCheckpoint(dir, tag string, opts LoadOptions) error {
	e.loads = append(e.loads, engineLoad{dir: dir, tag: tag, opts: opts})
	return nil
}

// brokenRank simulates uninitialized parallel infrastructure.
type brokenRank struct{}

func (brokenRank) TensorParallelWorldSize() (int, error) {
	return 0, errors.New("parallel state uninitialized")
}

func (brokenRank) TensorParallelRank() (int, error) {
	return 0, errors.New("parallel state uninitialized")
}

// writeJSONFile writes v as JSON under dir and returns the path.
func writeJSONFile(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
