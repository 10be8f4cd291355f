// Package providers - onnxruntime session optimization settings.
package providers

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// GraphOptimization names an onnxruntime graph optimization level.
type GraphOptimization string

const (
	// GraphOptimizationDisabled disables all graph rewrites.
	GraphOptimizationDisabled GraphOptimization = "disabled"
	// GraphOptimizationBasic enables constant folding and redundant node removal.
	GraphOptimizationBasic GraphOptimization = "basic"
	// GraphOptimizationExtended adds node fusions.
	GraphOptimizationExtended GraphOptimization = "extended"
	// GraphOptimizationAll enables every optimization including layout changes.
	GraphOptimizationAll GraphOptimization = "all"
)

func (g GraphOptimization) level() (ort.GraphOptimizationLevel, error) {
	switch g {
	case GraphOptimizationDisabled:
		return ort.GraphOptimizationLevelDisableAll, nil
	case GraphOptimizationBasic:
		return ort.GraphOptimizationLevelEnableBasic, nil
	case GraphOptimizationExtended, "":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case GraphOptimizationAll:
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, errors.Errorf("unknown graph optimization level %q", g)
	}
}

// OptimizationConfig contains onnxruntime session tuning.
type OptimizationConfig struct {
	// GraphOptimization controls the level of graph optimization.
	GraphOptimization GraphOptimization `json:"graph_optimization" yaml:"graph_optimization"`
	// Parallel runs independent graph nodes concurrently.
	Parallel bool `json:"parallel" yaml:"parallel"`
	// IntraOpNumThreads sets threads for parallelizing ops. 0 lets onnxruntime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`
	// InterOpNumThreads sets threads for parallelizing independent ops. 0 lets onnxruntime decide.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`
	// EnableCPUMemArena enables the CPU memory arena.
	EnableCPUMemArena bool `json:"enable_cpu_mem_arena" yaml:"enable_cpu_mem_arena"`
	// EnableMemoryPattern enables memory pattern optimization.
	EnableMemoryPattern bool `json:"enable_memory_pattern" yaml:"enable_memory_pattern"`
}

func (c OptimizationConfig) executionMode() ort.ExecutionMode {
	if c.Parallel {
		return ort.ExecutionModeParallel
	}
	return ort.ExecutionModeSequential
}

// DefaultOptimizationConfig returns extended graph optimization with threads sized to the host.
func DefaultOptimizationConfig() OptimizationConfig {
	numCPU := runtime.NumCPU()

	return OptimizationConfig{
		GraphOptimization:   GraphOptimizationExtended,
		IntraOpNumThreads:   max(1, numCPU/2),
		InterOpNumThreads:   max(1, numCPU/4),
		EnableCPUMemArena:   true,
		EnableMemoryPattern: true,
	}
}

// Validate checks the configuration.
func (c OptimizationConfig) Validate() error {
	if _, err := c.GraphOptimization.level(); err != nil {
		return err
	}
	if c.IntraOpNumThreads < 0 || c.InterOpNumThreads < 0 {
		return errors.New("thread counts must not be negative")
	}
	return nil
}

// NewSessionOptions builds session options and appends the execution provider.
//
// Arguments:
//   - config: Optimization configuration to apply.
//   - provider: The execution provider to enable.
//
// Returns:
//   - *ort.SessionOptions: Configured session options. The caller destroys them.
//   - error: Configuration error if any.
func NewSessionOptions(config OptimizationConfig, provider ExecutionProvider) (*ort.SessionOptions, error) {
	level, err := config.GraphOptimization.level()
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}

	mode := config.executionMode()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"graph optimization level", func() error { return options.SetGraphOptimizationLevel(level) }},
		{"execution mode", func() error { return options.SetExecutionMode(mode) }},
		{"intra-op threads", func() error { return options.SetIntraOpNumThreads(config.IntraOpNumThreads) }},
		{"inter-op threads", func() error { return options.SetInterOpNumThreads(config.InterOpNumThreads) }},
		{"cpu memory arena", func() error { return options.SetCpuMemArena(config.EnableCPUMemArena) }},
		{"memory pattern", func() error { return options.SetMemPattern(config.EnableMemoryPattern) }},
		{"execution provider", func() error { return provider.Apply(options) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			options.Destroy()
			return nil, errors.Wrapf(err, "failed to set %s", step.name)
		}
	}

	return options, nil
}
