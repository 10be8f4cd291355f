// Package inference - Backend construction.
package inference

import (
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config selects and configures an inference backend.
type Config struct {
	// Kind is the backend implementation.
	Kind BackendKind `json:"kind" yaml:"kind"`
	// ONNXRuntime configures the onnxruntime backend.
	ONNXRuntime providers.Config `json:"onnxruntime" yaml:"onnxruntime"`
	// OpenCV configures the OpenCV dnn backend.
	OpenCV OpenCVConfig `json:"opencv" yaml:"opencv"`
	// InputName is the onnxruntime graph input name.
	InputName string `json:"input_name" yaml:"input_name"`
}

// DefaultConfig returns an onnxruntime CPU backend.
func DefaultConfig() Config {
	return Config{
		Kind:        BackendONNXRuntime,
		ONNXRuntime: providers.DefaultConfig(),
		OpenCV:      DefaultOpenCVConfig(),
	}
}

// BackendFactory creates a backend for a model handle.
type BackendFactory func(handle *model.Handle, config Config, logger logrus.FieldLogger) (Backend, error)

// EngineBuilder assembles a model handle and the backend that runs it.
type EngineBuilder struct {
	handle  *model.Handle
	config  Config
	factory BackendFactory
	logger  logrus.FieldLogger
	err     error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		config:  DefaultConfig(),
		factory: NewBackend,
		logger:  logrus.StandardLogger(),
	}
}

// WithBackend sets the backend configuration.
func (b *EngineBuilder) WithBackend(config Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.config = config
	return b
}

// WithFactory replaces the function that constructs the backend.
func (b *EngineBuilder) WithFactory(factory BackendFactory) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if factory == nil {
		b.err = errors.New("backend factory is nil")
		return b
	}
	b.factory = factory
	return b
}

// WithLogger sets the logger passed to the backend.
func (b *EngineBuilder) WithLogger(logger logrus.FieldLogger) *EngineBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithModel resolves the model handle from the registry.
//
// Arguments:
//   - args: The model arguments.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args model.NewModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}
	handle, err := models.NewModel(args)
	if err != nil {
		b.err = err
		return b
	}
	b.handle = handle
	return b
}

// WithHandle uses an already resolved model handle.
func (b *EngineBuilder) WithHandle(handle *model.Handle) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.handle = handle
	return b
}

// HasError checks if the engine builder has errors.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build creates the backend.
//
// Returns:
//   - *model.Handle: The model handle.
//   - Backend: The backend.
//   - error: The first error recorded by the builder, or a construction error.
func (b *EngineBuilder) Build() (*model.Handle, Backend, error) {
	if b.HasError() {
		return nil, nil, b.err
	}
	if b.handle == nil {
		return nil, nil, errors.New("model not configured")
	}

	backend, err := b.factory(b.handle, b.config, b.logger)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to create %s backend", b.config.Kind)
	}
	return b.handle, backend, nil
}

// NewBackend creates the backend named by config.Kind.
func NewBackend(handle *model.Handle, config Config, logger logrus.FieldLogger) (Backend, error) {
	switch config.Kind {
	case BackendONNXRuntime, "":
		return NewSession(NewSessionArgs{
			Handle:    handle,
			Provider:  config.ONNXRuntime,
			InputName: config.InputName,
			Logger:    logger,
		})
	case BackendOpenCV:
		return NewNet(NewNetArgs{Handle: handle, Config: config.OpenCV, Logger: logger})
	default:
		return nil, errors.Errorf("unsupported backend: %s", config.Kind)
	}
}
