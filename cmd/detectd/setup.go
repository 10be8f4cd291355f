package main

import (
	"io"
	"os"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return cfg, detector.ConfigurationError(err)
	}

	if c.IsSet(flagModel) {
		cfg.Model.Path = c.String(flagModel)
	}
	if c.IsSet(flagWeights) {
		cfg.Model.Weights = c.String(flagWeights)
	}
	if c.IsSet(flagLabels) {
		cfg.Model.Labels = c.String(flagLabels)
	}
	if c.IsSet(flagBackend) {
		cfg.Backend.Kind = inference.BackendKind(c.String(flagBackend))
	}
	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagAddr) {
		cfg.Server.Addr = c.String(flagAddr)
	}

	return cfg, cfg.Validate()
}

// newLogger builds the process logger. The returned func releases the log file,
// if any, and is always safe to call.
func newLogger(cfg config.LogConfig) (*logrus.Logger, func(), error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid log level")
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File == "" {
		logger.SetOutput(os.Stderr)
		return logger, func() {}, nil
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open log file %s", cfg.File)
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, file))
	return logger, func() {
		logger.SetOutput(os.Stderr)
		_ = file.Close()
	}, nil
}

// newDetector builds the backend and the pipeline around it.
func newDetector(cfg config.Config, logger logrus.FieldLogger, prof profiler.Recorder) (*detector.Detector, error) {
	handle, backend, err := inference.NewEngineBuilder().
		WithBackend(cfg.Backend).
		WithLogger(logger).
		WithModel(cfg.Model).
		Build()
	if err != nil {
		return nil, detector.ConfigurationError(err)
	}

	annotate, err := cfg.AnnotateOptions()
	if err != nil {
		backend.Close()
		return nil, detector.ConfigurationError(err)
	}

	d, err := detector.New(detector.Args{
		Handle:   handle,
		Backend:  backend,
		NMS:      cfg.NMS,
		Annotate: annotate,
		Timeout:  cfg.Inference.Timeout,
		Profiler: prof,
		Logger:   logger,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}
	return d, nil
}
