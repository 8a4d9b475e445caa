// Package hook integrates a distributed-training accelerator engine into a
// generic training loop.
//
// # Reading Guide
//
// Start with these three files to understand the lifecycle:
//   - dsconfig.go: the accelerator configuration (dotted-path JSON with "auto" placeholders)
//   - reconcile.go: placeholder resolution and mismatch detection against trainer settings
//   - hook.go: the one-shot BeforeRun setup that builds the engine and rebinds the trainer
//
// # Architecture
//
// The trainer dispatches named extension points (backward pass, scheduler
// step, checkpoint save/load, module wrapping) through a Registry. This
// package's Hook installs accelerator-native replacements for all of them at
// setup time; the Registry resolves each point to exactly one active
// implementation, so there is no runtime patching.
//
// # Key Interfaces
//
// The collaborators are small interfaces, implemented elsewhere:
//   - Engine: the accelerator runtime wrapping model, optimizer, and scheduler
//   - Module: the slice of a model the checkpoint bridge needs (state dict, metadata)
//   - Optimizer, Scheduler: parameter-group and step surfaces
//   - RankInfo: tensor-parallel topology used for checkpoint shard naming
package hook
