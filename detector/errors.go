package detector

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// KindUnknown is any error not produced by this package.
	KindUnknown Kind = iota
	// KindConfiguration is a wiring problem detected at startup: anchors, labels, outputs.
	KindConfiguration
	// KindInput is a problem with the request: an undecodable image or bad thresholds.
	KindInput
	// KindInference is a backend failure, a timeout or an output that cannot be decoded.
	KindInference
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindInput:
		return "input"
	case KindInference:
		return "inference"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigurationError wraps err as a configuration error.
func ConfigurationError(err error) error {
	return &Error{Kind: KindConfiguration, Err: err}
}

// InputError wraps err as an input error.
func InputError(err error) error {
	return &Error{Kind: KindInput, Err: err}
}

// InferenceError wraps err as an inference error.
func InferenceError(err error) error {
	return &Error{Kind: KindInference, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
