// Package inference - OpenCV dnn backend.
package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// OpenCVConfig selects the dnn backend and target device.
type OpenCVConfig struct {
	// Backend is one of "default", "openvino", "opencv", "cuda", "vulkan".
	Backend string `json:"backend" yaml:"backend"`
	// Target is one of "cpu", "fp16", "fp32", "vpu", "cuda", "cudafp16".
	Target string `json:"target" yaml:"target"`
}

// DefaultOpenCVConfig runs on the Inference Engine backend on CPU.
func DefaultOpenCVConfig() OpenCVConfig {
	return OpenCVConfig{Backend: "openvino", Target: "cpu"}
}

// Net is a Backend over an OpenCV dnn network. The network is not safe for
// concurrent use, so Infer is serialized.
type Net struct {
	mu     sync.Mutex
	net    gocv.Net
	names  []string
	shape  []int
	logger logrus.FieldLogger
	closed bool
	desc   string
}

// NewNetArgs is the arguments for loading an OpenCV network.
type NewNetArgs struct {
	Handle *model.Handle
	Config OpenCVConfig
	Logger logrus.FieldLogger
}

// NewNet loads a network with gocv.ReadNet.
//
// For OpenVINO IR the handle's Path is the .xml topology and Weights the .bin file;
// for ONNX Weights is empty.
//
// Arguments:
//   - args: The network arguments.
//
// Returns:
//   - *Net: The network backend.
//   - error: An error if the files are missing or the network is empty.
func NewNet(args NewNetArgs) (*Net, error) {
	if args.Handle == nil {
		return nil, errors.New("model handle is required")
	}
	if args.Logger == nil {
		args.Logger = logrus.StandardLogger()
	}
	for _, path := range []string{args.Handle.Path, args.Handle.Weights} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "model file not found: %s", path)
		}
	}

	net := gocv.ReadNet(args.Handle.Path, args.Handle.Weights)
	if net.Empty() {
		return nil, errors.Errorf("failed to load network: %s", args.Handle.Path)
	}

	backend := gocv.ParseNetBackend(args.Config.Backend)
	target := gocv.ParseNetTarget(args.Config.Target)
	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, errors.Wrapf(err, "failed to set dnn backend %q", args.Config.Backend)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, errors.Wrapf(err, "failed to set dnn target %q", args.Config.Target)
	}

	n := &Net{
		net:    net,
		names:  args.Handle.OutputNames(),
		shape:  args.Handle.Preprocess.Shape(),
		logger: args.Logger,
		desc:   fmt.Sprintf("%s/%s/%s", BackendOpenCV, args.Config.Backend, args.Config.Target),
	}

	args.Logger.WithFields(logrus.Fields{
		"model":   args.Handle.Path,
		"weights": args.Handle.Weights,
		"backend": args.Config.Backend,
		"target":  args.Config.Target,
		"outputs": n.names,
	}).Info("opencv network loaded")

	return n, nil
}

// Infer implements Backend.
func (n *Net) Infer(ctx context.Context, input *tensor.Dense) ([]Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := checkInput(input, n.shape)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}

	blob := gocv.NewMatWithSizes(n.shape, gocv.MatTypeCV32F)
	defer blob.Close()
	ptr, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to access input blob")
	}
	copy(ptr, data)

	n.net.SetInput(blob, "")
	mats := n.net.ForwardLayers(n.names)
	defer func() {
		for i := range mats {
			mats[i].Close()
		}
	}()
	if len(mats) != len(n.names) {
		return nil, errors.Errorf("network returned %d outputs, expected %d", len(mats), len(n.names))
	}

	outputs := make([]Output, len(mats))
	for i := range mats {
		values, err := mats[i].DataPtrFloat32()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read output %q", n.names[i])
		}
		backing := make([]float32, len(values))
		copy(backing, values)
		outputs[i] = Output{
			Name:   n.names[i],
			Tensor: tensor.New(tensor.WithShape(mats[i].Size()...), tensor.WithBacking(backing)),
		}
	}
	return outputs, nil
}

// Name implements Backend.
func (n *Net) Name() string {
	return n.desc
}

// Close releases the network.
func (n *Net) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	return n.net.Close()
}
