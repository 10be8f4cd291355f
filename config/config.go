// Package config loads the service configuration from YAML over built-in defaults.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/report"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxBodyBytes bounds POST /detect bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// InferenceConfig bounds backend calls.
type InferenceConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// FetchConfig configures the camera image fetcher.
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// MaxBytes bounds fetched images.
	MaxBytes int64 `yaml:"max_bytes"`
}

// AnnotateConfig configures drawing and the embedded image.
type AnnotateConfig struct {
	Outline     string  `yaml:"outline"`
	Text        string  `yaml:"text"`
	LineWidth   float64 `yaml:"line_width"`
	FontSize    float64 `yaml:"font_size"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives log output in addition to stderr.
	File string `yaml:"file"`
}

// Config is the whole service configuration.
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Model      model.NewModelArgs    `yaml:"model"`
	Backend    inference.Config      `yaml:"backend"`
	Thresholds detector.Thresholds   `yaml:"thresholds"`
	NMS        postprocess.NMSConfig `yaml:"nms"`
	Inference  InferenceConfig       `yaml:"inference"`
	Fetch      FetchConfig           `yaml:"fetch"`
	Annotate   AnnotateConfig        `yaml:"annotate"`
	Log        LogConfig             `yaml:"log"`
	Profiler   profiler.Options      `yaml:"profiler"`
	// Tool is the name reported in responses.
	Tool string `yaml:"tool"`
}

// Default returns the configuration used when a field is absent from the file.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":5000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    32 << 20,
		},
		Model: model.NewModelArgs{
			Name: model.ModelNameYOLOv3,
		},
		Backend:    inference.DefaultConfig(),
		Thresholds: detector.DefaultThresholds(),
		NMS:        postprocess.DefaultNMSConfig(),
		Inference:  InferenceConfig{Timeout: 30 * time.Second},
		Fetch:      FetchConfig{Timeout: 10 * time.Second, MaxBytes: 32 << 20},
		Annotate: AnnotateConfig{
			Outline:     "#ffffff",
			Text:        "#000000",
			LineWidth:   2,
			FontSize:    10,
			JPEGQuality: report.DefaultJPEGQuality,
		},
		Log:      LogConfig{Level: "info", Format: "text"},
		Profiler: profiler.Options{ReportInterval: time.Minute, MaxSamples: 600},
		Tool:     report.DefaultTool,
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}
	return cfg, nil
}

// Validate checks every section. The returned error is a configuration error.
func (c Config) Validate() error {
	var problems []error

	if c.Server.Addr == "" {
		problems = append(problems, errors.New("server.addr is required"))
	}
	if c.Server.MaxBodyBytes <= 0 || c.Fetch.MaxBytes <= 0 {
		problems = append(problems, errors.New("server.max_body_bytes and fetch.max_bytes must be positive"))
	}
	if !lo.Contains(models.Names(), c.Model.Name) {
		problems = append(problems, errors.Errorf("model.name %q is not one of %v", c.Model.Name, models.Names()))
	}
	if c.Model.Path == "" {
		problems = append(problems, errors.New("model.path is required"))
	}
	if !lo.Contains(inference.BackendKinds, c.Backend.Kind) {
		problems = append(problems, errors.Errorf("backend.kind %q is not one of %v", c.Backend.Kind, inference.BackendKinds))
	}
	if err := c.Backend.ONNXRuntime.Optimization.Validate(); err != nil {
		problems = append(problems, errors.Wrap(err, "backend.onnxruntime.optimization"))
	}
	if err := c.Thresholds.Validate(); err != nil {
		problems = append(problems, errors.Wrap(err, "thresholds"))
	}
	if c.Inference.Timeout < 0 || c.Fetch.Timeout < 0 {
		problems = append(problems, errors.New("timeouts must not be negative"))
	}
	if _, err := c.AnnotateOptions(); err != nil {
		problems = append(problems, errors.Wrap(err, "annotate"))
	}
	if c.Annotate.JPEGQuality < 1 || c.Annotate.JPEGQuality > 100 {
		problems = append(problems, errors.Errorf("annotate.jpeg_quality must be in [1, 100], got %d", c.Annotate.JPEGQuality))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, errors.Wrap(err, "log.level"))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, errors.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	msgs := lo.Map(problems, func(err error, _ int) string { return err.Error() })
	return detector.ConfigurationError(errors.Errorf("invalid configuration: %v", msgs))
}

// AnnotateOptions converts the annotate section to detector options.
func (c Config) AnnotateOptions() (detector.AnnotateOptions, error) {
	outline, err := ParseHexColor(c.Annotate.Outline)
	if err != nil {
		return detector.AnnotateOptions{}, errors.Wrap(err, "outline")
	}
	text, err := ParseHexColor(c.Annotate.Text)
	if err != nil {
		return detector.AnnotateOptions{}, errors.Wrap(err, "text")
	}
	if c.Annotate.LineWidth <= 0 || c.Annotate.FontSize <= 0 {
		return detector.AnnotateOptions{}, errors.New("line_width and font_size must be positive")
	}
	return detector.AnnotateOptions{
		Outline:   outline,
		Text:      text,
		LineWidth: c.Annotate.LineWidth,
		FontSize:  c.Annotate.FontSize,
	}, nil
}
