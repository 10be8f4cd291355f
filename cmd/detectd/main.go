// Package main is the detectd command: the detection HTTP service and its batch runner.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	flagConfig      = "config"
	flagAddr        = "addr"
	flagModel       = "model"
	flagWeights     = "weights"
	flagLabels      = "labels"
	flagBackend     = "backend"
	flagLogLevel    = "log-level"
	flagDir         = "dir"
	flagOut         = "out"
	flagConcurrency = "concurrency"
	flagAnnotated   = "annotated"
	flagFamily      = "family"
)

func main() {
	app := &cli.App{
		Name:  "detectd",
		Usage: "YOLOv3 object detection service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
				EnvVars: []string{"DETECTD_CONFIG"},
			},
			&cli.StringFlag{
				Name:    flagModel,
				Usage:   "model file (ONNX, or OpenVINO IR .xml)",
				EnvVars: []string{"DETECTD_MODEL"},
			},
			&cli.StringFlag{
				Name:    flagWeights,
				Usage:   "OpenVINO IR weights (.bin)",
				EnvVars: []string{"DETECTD_WEIGHTS"},
			},
			&cli.StringFlag{
				Name:    flagLabels,
				Usage:   "labels file, one class per line",
				EnvVars: []string{"DETECTD_LABELS"},
			},
			&cli.StringFlag{
				Name:    flagBackend,
				Usage:   "inference backend: onnxruntime or opencv",
				EnvVars: []string{"DETECTD_BACKEND"},
			},
			&cli.StringFlag{
				Name:    flagLogLevel,
				Usage:   "log level",
				EnvVars: []string{"DETECTD_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve /detect over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagAddr,
						Usage:   "listen address",
						EnvVars: []string{"DETECTD_ADDR"},
					},
				},
				Action: serveAction,
			},
			{
				Name:  "run",
				Usage: "run detection over every image in a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagDir, Usage: "input `DIR`", Required: true},
					&cli.StringFlag{Name: flagOut, Usage: "output `DIR` for JSON results", Required: true},
					&cli.IntFlag{Name: flagConcurrency, Usage: "images processed in parallel", Value: 2},
					&cli.BoolFlag{Name: flagAnnotated, Usage: "also write the annotated JPEG"},
				},
				Action: runAction,
			},
			{
				Name:  "labels",
				Usage: "print the label table",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagFamily, Usage: "built-in family when no labels file is given", Value: "coco"},
				},
				Action: labelsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Error("detectd failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
