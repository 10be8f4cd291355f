// Package model - Model options.
//
// See:
// https://docs.openvino.ai/2024/openvino-workflow/model-optimization-guide/weight-compression.html
package model

import "github.com/pkg/errors"

// Precision represents the numeric precision an accelerator runs the model at.
type Precision string

const (
	// PrecisionAccuracy keeps the model's own input precision.
	// (OpenVINO's default input precision type.)
	PrecisionAccuracy Precision = "ACCURACY"
	// PrecisionFP32 represents 32-bit floating point precision.
	PrecisionFP32 Precision = "FP32"
	// PrecisionFP16 represents 16-bit floating point precision.
	PrecisionFP16 Precision = "FP16"
	// PrecisionINT8 represents 8-bit integer precision.
	PrecisionINT8 Precision = "INT8"
)

// Validate reports whether p is a known precision. The empty value means "backend default".
func (p Precision) Validate() error {
	switch p {
	case "", PrecisionAccuracy, PrecisionFP32, PrecisionFP16, PrecisionINT8:
		return nil
	default:
		return errors.Errorf("unknown precision %q", p)
	}
}
