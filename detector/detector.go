// Package detector runs the detection pipeline: preprocess, one backend forward
// pass, per-scale decoding, suppression, labelling and annotation.
package detector

import (
	"context"
	"image"
	"time"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/model/preprocess"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/yolov3"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Thresholds are the per-request score and overlap cut-offs.
type Thresholds struct {
	// Decode is the objectness and per-class confidence cut-off applied while decoding.
	Decode float64 `json:"decode" yaml:"decode"`
	// Display is the minimum confidence reported after suppression.
	Display float64 `json:"display" yaml:"display"`
	// IoU is the overlap at or above which NMS zeroes the later candidate.
	IoU float64 `json:"iou" yaml:"iou"`
}

// DefaultThresholds returns decode 0.7, display 0.2 and IoU 0.4.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Decode:  yolov3.DefaultThreshold,
		Display: postprocess.DefaultDisplayThreshold,
		IoU:     postprocess.DefaultIoUThreshold,
	}
}

// Validate checks that every threshold lies in its range.
func (t Thresholds) Validate() error {
	if t.Decode < 0 || t.Decode > 1 {
		return errors.Errorf("decode threshold must be in [0, 1], got %v", t.Decode)
	}
	if t.Display < 0 || t.Display > 1 {
		return errors.Errorf("display threshold must be in [0, 1], got %v", t.Display)
	}
	if t.IoU <= 0 || t.IoU > 1 {
		return errors.Errorf("iou threshold must be in (0, 1], got %v", t.IoU)
	}
	return nil
}

// Result is the outcome of one detection request.
type Result struct {
	// Detections survived NMS and the display gate, in decode emission order
	// with the scales concatenated in backend output order.
	Detections []postprocess.Detection
	// Annotated is a copy of the source with the detections drawn on it.
	Annotated image.Image
	// SourceWidth and SourceHeight are the dimensions of the request image.
	SourceWidth  int
	SourceHeight int
	// InferenceTime covers preprocessing through suppression.
	InferenceTime time.Duration
	// Suppressed counts candidates zeroed by NMS.
	Suppressed int
}

// Args is the arguments for creating a Detector.
type Args struct {
	Handle  *model.Handle
	Backend inference.Backend
	// NMS selects the suppression variant. Its IoUThreshold is replaced per request.
	NMS      postprocess.NMSConfig
	Annotate AnnotateOptions
	// Timeout bounds each backend call. Zero means no timeout.
	Timeout  time.Duration
	Profiler profiler.Recorder
	Logger   logrus.FieldLogger
}

// Detector is safe for concurrent use when its backend is.
type Detector struct {
	handle       *model.Handle
	backend      inference.Backend
	preprocessor *preprocess.Preprocessor
	annotator    *Annotator
	nms          postprocess.NMSConfig
	timeout      time.Duration
	profiler     profiler.Recorder
	logger       logrus.FieldLogger
}

// New validates the wiring between the model handle and the backend.
//
// Every configured output side must have an anchor group and the label table must
// have one entry per class. Failures are configuration errors.
//
// Arguments:
//   - args: The detector arguments.
//
// Returns:
//   - *Detector: The detector.
//   - error: A configuration error if the wiring is inconsistent.
func New(args Args) (*Detector, error) {
	if args.Handle == nil {
		return nil, ConfigurationError(errors.New("model handle is required"))
	}
	if args.Backend == nil {
		return nil, ConfigurationError(errors.New("inference backend is required"))
	}
	if err := args.Handle.Validate(); err != nil {
		return nil, ConfigurationError(err)
	}
	if args.Timeout < 0 {
		return nil, ConfigurationError(errors.Errorf("negative inference timeout %v", args.Timeout))
	}
	if args.Logger == nil {
		args.Logger = logrus.StandardLogger()
	}
	if args.Profiler == nil {
		args.Profiler = profiler.Nop{}
	}
	if args.Annotate == (AnnotateOptions{}) {
		args.Annotate = DefaultAnnotateOptions()
	}

	preprocessConfig := args.Handle.Preprocess
	preprocessor, err := preprocess.NewPreprocessor(&preprocessConfig, args.Logger)
	if err != nil {
		return nil, ConfigurationError(err)
	}
	annotator, err := NewAnnotator(args.Annotate)
	if err != nil {
		return nil, ConfigurationError(err)
	}

	args.Logger.WithFields(logrus.Fields{
		"model":   args.Handle.Name,
		"backend": args.Backend.Name(),
		"classes": args.Handle.Classes,
		"sides":   args.Handle.Anchors.Sides(),
	}).Info("detector ready")

	return &Detector{
		handle:       args.Handle,
		backend:      args.Backend,
		preprocessor: preprocessor,
		annotator:    annotator,
		nms:          args.NMS,
		timeout:      args.Timeout,
		profiler:     args.Profiler,
		logger:       args.Logger,
	}, nil
}

// Handle returns the model handle.
func (d *Detector) Handle() *model.Handle {
	return d.handle
}

// Backend returns the backend's description.
func (d *Detector) Backend() string {
	return d.backend.Name()
}

// DetectBytes decodes an encoded image and runs Detect on it.
func (d *Detector) DetectBytes(ctx context.Context, data []byte, th Thresholds) (*Result, error) {
	img, _, err := images.Decode(data)
	if err != nil {
		return nil, InputError(errors.Wrap(err, "unable to decode image"))
	}
	return d.Detect(ctx, img, th)
}

// Detect runs the full pipeline on one image.
//
// The backend is invoked exactly once. Its outputs are decoded in the order
// returned, concatenated and suppressed as one batch, so a box found on an
// earlier scale always wins over an overlapping box from a later scale.
//
// Arguments:
//   - ctx: Request context. Cancellation and the configured timeout apply to the backend call.
//   - img: The source image.
//   - th: Thresholds for this request.
//
// Returns:
//   - *Result: Detections, the annotated copy and timings.
//   - error: An *Error classified as input or inference.
func (d *Detector) Detect(ctx context.Context, img image.Image, th Thresholds) (*Result, error) {
	if err := th.Validate(); err != nil {
		return nil, InputError(err)
	}

	start := time.Now()

	done := d.profiler.StartOperation(profiler.StagePreprocess)
	prep, err := d.preprocessor.Preprocess(img)
	done()
	if err != nil {
		return nil, InputError(err)
	}

	outputs, err := d.infer(ctx, prep)
	if err != nil {
		return nil, err
	}

	done = d.profiler.StartOperation(profiler.StageDecode)
	var candidates []postprocess.Candidate
	args := d.handle.DecodeArgs(th.Decode, prep.OriginalWidth, prep.OriginalHeight)
	for _, out := range outputs {
		decoded, err := yolov3.Decode(out.Tensor, args)
		if err != nil {
			done()
			return nil, InferenceError(errors.Wrapf(err, "decoding output %q", out.Name))
		}
		candidates = append(candidates, decoded...)
	}
	done()

	done = d.profiler.StartOperation(profiler.StageNMS)
	nms := d.nms
	nms.IoUThreshold = th.IoU
	suppressed := postprocess.Suppress(candidates, nms)
	kept := postprocess.FilterByConfidence(candidates, th.Display)
	done()

	elapsed := time.Since(start)

	detections := lo.Map(kept, func(c postprocess.Candidate, _ int) postprocess.Detection {
		return postprocess.Detection{
			Candidate: c,
			Box:       c.Box(),
			Label:     d.handle.Label(c.Class),
		}
	})

	done = d.profiler.StartOperation(profiler.StageAnnotate)
	annotated := d.annotator.Annotate(img, detections)
	done()

	d.profiler.RecordMetric("candidates", float64(len(candidates)))
	d.profiler.RecordMetric("detections", float64(len(detections)))
	d.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"suppressed": suppressed,
		"detections": len(detections),
		"elapsed":    elapsed,
	}).Debug("detection complete")

	return &Result{
		Detections:    detections,
		Annotated:     annotated,
		SourceWidth:   prep.OriginalWidth,
		SourceHeight:  prep.OriginalHeight,
		InferenceTime: elapsed,
		Suppressed:    suppressed,
	}, nil
}

func (d *Detector) infer(ctx context.Context, prep *preprocess.PreprocessingResult) ([]inference.Output, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	done := d.profiler.StartOperation(profiler.StageInference)
	outputs, err := d.backend.Infer(ctx, prep.Tensor)
	done()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, InferenceError(errors.Wrapf(err, "%s inference failed", d.backend.Name()))
	}

	if len(outputs) != len(d.handle.Outputs) {
		return nil, InferenceError(errors.Errorf("backend returned %d outputs, model declares %d",
			len(outputs), len(d.handle.Outputs)))
	}
	return outputs, nil
}

// Close releases the backend.
func (d *Detector) Close() error {
	return d.backend.Close()
}
