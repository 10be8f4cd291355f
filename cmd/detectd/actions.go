package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/report"
	"github.com/nvr-ai/go-detect/server"
	"github.com/nvr-ai/go-detect/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	prof := profiler.New(cfg.Profiler, logger)
	d, err := newDetector(cfg, logger, prof)
	if err != nil {
		return err
	}
	defer d.Close()

	srv, err := server.New(server.Args{
		Pipeline:     d,
		Fetcher:      server.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.MaxBytes),
		Thresholds:   cfg.Thresholds,
		Tool:         cfg.Tool,
		JPEGQuality:  cfg.Annotate.JPEGQuality,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Profiler:     prof,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prof.Start()
	defer prof.Stop()

	return srv.ListenAndServe(ctx, server.ServeOptions{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	files, err := util.LoadDirectoryImageFiles(c.String(flagDir))
	if err != nil {
		return err
	}
	out := c.String(flagOut)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", out)
	}

	prof := profiler.New(cfg.Profiler, logger)
	d, err := newDetector(cfg, logger, prof)
	if err != nil {
		return err
	}
	defer d.Close()

	annotated := c.Bool(flagAnnotated)
	start := time.Now()

	g, ctx := errgroup.WithContext(c.Context)
	g.SetLimit(max(1, c.Int(flagConcurrency)))
	for _, file := range files {
		file := file
		g.Go(func() error {
			entry := logger.WithField("file", file.Path)
			captured := time.Now()

			result, err := d.DetectBytes(ctx, file.Data, cfg.Thresholds)
			if err != nil {
				entry.WithError(err).Warn("detection failed")
				return writeJSON(filepath.Join(out, file.Name()+".json"), report.ErrorResponse{Error: err.Error()})
			}

			resp, err := report.Build(report.BuildArgs{
				Tool:          cfg.Tool,
				CapturedAt:    captured,
				InferenceTime: result.InferenceTime,
				Detections:    result.Detections,
				Annotated:     result.Annotated,
				Quality:       cfg.Annotate.JPEGQuality,
			})
			if err != nil {
				return err
			}
			if err := writeJSON(filepath.Join(out, file.Name()+".json"), resp); err != nil {
				return err
			}
			if annotated {
				path := filepath.Join(out, file.Name()+".jpg")
				if err := imaging.Save(result.Annotated, path, imaging.JPEGQuality(cfg.Annotate.JPEGQuality)); err != nil {
					return errors.Wrapf(err, "failed to save %s", path)
				}
			}

			entry.WithFields(logrus.Fields{
				"detections": len(result.Detections),
				"inf_time":   result.InferenceTime,
			}).Info("image processed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"images":  len(files),
		"elapsed": time.Since(start),
		"stats":   prof.Snapshot().Operations,
	}).Info("batch complete")
	return nil
}

func labelsAction(c *cli.Context) error {
	var (
		labels []string
		err    error
	)
	if path := c.String(flagLabels); path != "" {
		labels, err = models.LoadLabels(path)
	} else {
		labels, err = models.LookupLabels(model.Family(c.String(flagFamily)))
	}
	if err != nil {
		return err
	}

	for i, label := range labels {
		fmt.Fprintf(c.App.Writer, "%3d  %s\n", i, label)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode result")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
