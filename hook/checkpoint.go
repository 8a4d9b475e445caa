package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// TrainerStateSuffix names the trainer-side metadata file of a logical
	// checkpoint, appended after the rank qualifier.
	TrainerStateSuffix = "_trainer_state.json"

	// binFileDir is the weights subdirectory created under prepared output
	// directories.
	binFileDir = "model"

	// configDumpName is the trainer configuration dump written by
	// PrepareOutput.
	configDumpName = "configuration.json"
)

// TrainerState is the run metadata written next to the engine checkpoint:
// progress counters, learning rates, RNG seed. Model weights never go here;
// the engine owns those.
type TrainerState struct {
	Epoch         int            `json:"epoch"`
	Iter          int            `json:"iter"`
	LearningRates []float64      `json:"learning_rates,omitempty"`
	Seed          int64          `json:"seed,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
}

// shardFile is the engine-less flat weights file layout: one top-level
// "module" mapping of parameter name to tensor.
type shardFile struct {
	Module StateDict `json:"module"`
}

// trainerStateFile returns the rank-qualified metadata path for a prefix.
func (h *Hook) trainerStateFile(prefix string) string {
	return prefix + RankQualifier(h.rank) + TrainerStateSuffix
}

// SaveCheckpoints writes the two artifacts of one logical checkpoint: the
// trainer-state file next to the prefix, and the engine's own sharded
// checkpoint under dirname(prefix) tagged with basename(prefix).
func (h *Hook) SaveCheckpoints(tr *Trainer, prefix string, state *TrainerState) error {
	if tr.Engine == nil {
		return fmt.Errorf("cannot save checkpoint %s: engine not constructed", prefix)
	}
	if state == nil {
		state = &TrainerState{}
	}
	stateFile := h.trainerStateFile(prefix)
	if err := writeTrainerState(stateFile, state); err != nil {
		return err
	}

	dir := filepath.Dir(prefix)
	tag := filepath.Base(prefix)
	if err := tr.Engine.SaveCheckpoint(dir, tag); err != nil {
		return fmt.Errorf("engine checkpoint save under %s (tag %s): %w", dir, tag, err)
	}
	tr.log().Infof("saved checkpoint %s", prefix)
	return nil
}

// LoadCheckpoints restores one logical checkpoint identified by a directory
// prefix. When an engine exists it owns weight and optimizer restoration;
// without one (inference, prediction) the flat per-rank model-states file is
// read directly, skipping keys the target module does not have.
func (h *Hook) LoadCheckpoints(prefix string, tr *Trainer, loadAllState, strict bool) (*TrainerState, error) {
	info, err := os.Stat(prefix)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("checkpoint directory %s does not exist", prefix)
	}
	dir := filepath.Dir(prefix)
	tag := filepath.Base(prefix)

	var state *TrainerState
	stateFile := h.trainerStateFile(prefix)
	if _, err := os.Stat(stateFile); err == nil {
		state, err = LoadTrainerState(stateFile, loadAllState)
		if err != nil {
			return nil, err
		}
	}

	if tr.Engine != nil {
		opts := LoadOptions{ModuleStrict: strict, ModuleOnly: !loadAllState}
		if err := tr.Engine.LoadCheckpoint(dir, tag, opts); err != nil {
			return nil, fmt.Errorf("engine checkpoint load from %s (tag %s): %w", dir, tag, err)
		}
		return state, nil
	}

	modelFile := filepath.Join(prefix, ShardStatesFile(h.rank))
	states, err := loadShardStates(modelFile)
	if err != nil {
		return nil, err
	}
	module := tr.UnwrapModule(tr.Model)
	target := module.StateDict()
	matched := make(StateDict, len(states))
	for key, tensor := range states {
		if _, ok := target[key]; !ok {
			tr.log().Infof("skip key: %s", key)
			continue
		}
		tr.log().Debugf("loading key: %s", key)
		matched[key] = tensor
	}
	if err := module.LoadStateDict(matched, strict); err != nil {
		return nil, fmt.Errorf("load module state from %s: %w", modelFile, err)
	}
	return state, nil
}

// RemoveCheckpoints deletes both artifacts of a logical checkpoint. Absent
// files count as success, so the trainer's retry policy may call this twice.
func (h *Hook) RemoveCheckpoints(tr *Trainer, prefix string) error {
	stateFile := h.trainerStateFile(prefix)
	if err := os.Remove(stateFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove trainer state %s: %w", stateFile, err)
	}
	if err := os.RemoveAll(prefix); err != nil {
		return fmt.Errorf("remove checkpoint directory %s: %w", prefix, err)
	}
	return nil
}

// PrepareOutput lays out an export directory: config-like files copied from
// the model dir, the trainer configuration dump, and the empty weights
// subdirectory the engine fills later.
func (h *Hook) PrepareOutput(tr *Trainer, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", outputDir, err)
	}
	if tr.ModelDir != "" {
		if err := copyConfigFiles(tr.ModelDir, outputDir); err != nil {
			return err
		}
	}
	if tr.Cfg != nil {
		data, err := json.MarshalIndent(tr.Cfg.Raw(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode trainer config: %w", err)
		}
		if err := os.WriteFile(filepath.Join(outputDir, configDumpName), data, 0o644); err != nil {
			return fmt.Errorf("dump trainer config: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(outputDir, binFileDir), 0o755); err != nil {
		return fmt.Errorf("create weights dir: %w", err)
	}
	return nil
}

// LoadTrainerState reads a metadata file. With loadAll false only the core
// progress counters (epoch, iter) are kept; learning rates, RNG seed, and
// auxiliary meta are dropped.
func LoadTrainerState(path string, loadAll bool) (*TrainerState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trainer state %s: %w", path, err)
	}
	var st TrainerState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse trainer state %s: %w", path, err)
	}
	if !loadAll {
		st = TrainerState{Epoch: st.Epoch, Iter: st.Iter}
	}
	return &st, nil
}

func writeTrainerState(path string, state *TrainerState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trainer state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trainer state %s: %w", path, err)
	}
	return nil
}

func loadShardStates(path string) (StateDict, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model states %s: %w", path, err)
	}
	var shard shardFile
	if err := json.Unmarshal(data, &shard); err != nil {
		return nil, fmt.Errorf("parse model states %s: %w", path, err)
	}
	if shard.Module == nil {
		return nil, fmt.Errorf("model states %s has no top-level `module` mapping", path)
	}
	return shard.Module, nil
}

// copyConfigFiles copies top-level config-like files, never weights.
func copyConfigFiles(srcDir, dstDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read model dir %s: %w", srcDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".yaml", ".yml", ".txt":
		default:
			continue
		}
		src := filepath.Join(srcDir, entry.Name())
		dst := filepath.Join(dstDir, entry.Name())
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}
