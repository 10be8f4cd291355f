// Package inference - Inference backends that run a detection network on a preprocessed tensor.
package inference

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gorgonia.org/tensor"
)

// BackendKind names an inference backend implementation.
type BackendKind string

const (
	// BackendONNXRuntime runs ONNX models through onnxruntime and its execution providers.
	BackendONNXRuntime BackendKind = "onnxruntime"
	// BackendOpenCV runs OpenVINO IR or ONNX models through OpenCV's dnn module.
	BackendOpenCV BackendKind = "opencv"
)

// BackendKinds is a list of all supported backends.
var BackendKinds = []BackendKind{BackendONNXRuntime, BackendOpenCV}

// ErrClosed is returned by Infer after Close.
var ErrClosed = errors.New("inference backend is closed")

// Output is one named output tensor of a forward pass.
type Output struct {
	// Name is the output node or layer name.
	Name string
	// Tensor has shape [1, channels, side, side].
	Tensor *tensor.Dense
}

// Backend runs the network on one preprocessed input.
//
// Infer returns the region outputs in the model's declared order. The returned
// tensors are owned by the caller. Implementations serialize concurrent calls
// when the underlying runtime is not safe for concurrent use.
type Backend interface {
	Infer(ctx context.Context, input *tensor.Dense) ([]Output, error)
	Name() string
	Close() error
}

// checkInput verifies the input tensor is float32 with the expected shape.
func checkInput(input *tensor.Dense, want []int) ([]float32, error) {
	if input == nil {
		return nil, errors.New("input tensor is nil")
	}
	if !shapeEqual(want, input.Shape()) {
		return nil, errors.Errorf("input shape %v does not match model input %v", input.Shape(), want)
	}
	data, ok := input.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("input tensor must be float32, got %v", input.Dtype())
	}
	return data, nil
}

func shapeEqual(a []int, b tensor.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	return lo.EveryBy(lo.Range(len(a)), func(i int) bool { return a[i] == b[i] })
}
