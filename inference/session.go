// Package inference - onnxruntime sessions.
package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

var (
	environmentOnce sync.Once
	environmentErr  error
)

// InitializeEnvironment loads the onnxruntime shared library once per process.
//
// Arguments:
//   - libraryPath: Explicit library location, or "" for the environment and platform default.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeEnvironment(libraryPath string) error {
	environmentOnce.Do(func() {
		path := providers.GetSharedLibPath(libraryPath)
		if _, err := os.Stat(path); err != nil {
			environmentErr = errors.Wrapf(err, "onnxruntime library not found at %s", path)
			return
		}

		ort.SetSharedLibraryPath(path)
		if err := ort.InitializeEnvironment(); err != nil {
			environmentErr = errors.Wrap(err, "error initializing onnxruntime environment")
		}
	})
	return environmentErr
}

// Session is a Backend over an onnxruntime session.
//
// Input and output tensors are allocated once and reused for every run, so Infer
// holds a lock for the duration of the forward pass and copies outputs out before
// releasing it.
type Session struct {
	mu       sync.Mutex
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	outputs  []*ort.Tensor[float32]
	names    []string
	shape    []int
	provider providers.ProviderBackend
	logger   logrus.FieldLogger
	closed   bool
}

// NewSessionArgs is the arguments for creating an onnxruntime session.
type NewSessionArgs struct {
	// Handle describes the model, its input size and its region outputs.
	Handle *model.Handle
	// Provider selects the execution provider and session tuning.
	Provider providers.Config
	// InputName is the graph input name. Defaults to "inputs".
	InputName string
	Logger    logrus.FieldLogger
}

// NewSession creates an onnxruntime session with preallocated tensors.
//
// Arguments:
//   - args: The session arguments.
//
// Returns:
//   - *Session: The session backend.
//   - error: An error if the runtime, provider or model fails to load.
func NewSession(args NewSessionArgs) (*Session, error) {
	if args.Handle == nil {
		return nil, errors.New("model handle is required")
	}
	if args.Logger == nil {
		args.Logger = logrus.StandardLogger()
	}
	if args.InputName == "" {
		args.InputName = "inputs"
	}

	if err := InitializeEnvironment(args.Provider.LibraryPath); err != nil {
		return nil, err
	}

	provider, err := providers.NewProvider(args.Provider)
	if err != nil {
		return nil, err
	}
	options, err := providers.NewSessionOptions(args.Provider.Optimization, provider)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	shape := args.Handle.Preprocess.Shape()
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(toInt64(shape)...))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	s := &Session{
		input:    input,
		names:    args.Handle.OutputNames(),
		shape:    shape,
		provider: provider.Backend(),
		logger:   args.Logger,
	}

	values := make([]ort.Value, 0, len(args.Handle.Outputs))
	for _, out := range args.Handle.Outputs {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(args.Handle.Channels()), int64(out.Side), int64(out.Side)))
		if err != nil {
			s.destroy()
			return nil, errors.Wrapf(err, "error creating output tensor %q", out.Name)
		}
		s.outputs = append(s.outputs, t)
		values = append(values, t)
	}

	session, err := ort.NewAdvancedSession(
		args.Handle.Path,
		[]string{args.InputName},
		s.names,
		[]ort.Value{input},
		values,
		options,
	)
	if err != nil {
		s.destroy()
		return nil, errors.Wrapf(err, "error creating session for %s", args.Handle.Path)
	}
	s.session = session

	args.Logger.WithFields(logrus.Fields{
		"model":    args.Handle.Path,
		"provider": provider.Backend(),
		"input":    shape,
		"outputs":  s.names,
	}).Info("onnxruntime session created")

	return s, nil
}

// Infer implements Backend.
func (s *Session) Infer(ctx context.Context, input *tensor.Dense) ([]Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := checkInput(input, s.shape)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	copy(s.input.GetData(), data)
	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "onnxruntime run failed")
	}

	outputs := make([]Output, len(s.outputs))
	for i, out := range s.outputs {
		backing := make([]float32, len(out.GetData()))
		copy(backing, out.GetData())
		outputs[i] = Output{
			Name:   s.names[i],
			Tensor: tensor.New(tensor.WithShape(fromInt64(out.GetShape())...), tensor.WithBacking(backing)),
		}
	}
	return outputs, nil
}

// Name implements Backend.
func (s *Session) Name() string {
	return fmt.Sprintf("%s/%s", BackendONNXRuntime, s.provider)
}

// Close releases the session and its tensors.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.destroy()
	return nil
}

func (s *Session) destroy() {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	for _, out := range s.outputs {
		out.Destroy()
	}
	s.outputs = nil
}

func toInt64(shape []int) []int64 {
	out := make([]int64, len(shape))
	for i, v := range shape {
		out[i] = int64(v)
	}
	return out
}

func fromInt64(shape ort.Shape) []int {
	out := make([]int, len(shape))
	for i, v := range shape {
		out[i] = int(v)
	}
	return out
}
