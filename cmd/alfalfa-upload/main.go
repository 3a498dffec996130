package main

import (
	"errors"
	"os"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := log.NewLogger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("Could not load .env file: %s", err)
	}

	app := newApp(logger, env.NewRepository())
	if err := app.Run(os.Args); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

func newApp(logger log.Logger, envRepo env.Repository) *cli.App {
	return &cli.App{
		Name:  "alfalfa-upload",
		Usage: "Upload building simulation models and register them as jobs",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Print debug logs",
				EnvVars: []string{"VERBOSE"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.EnableDebugLog(c.Bool("verbose"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "upload",
				Usage: "Upload models and register each of them as a job",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "model",
						Usage:    "Model to upload: a path, file:// or http(s) URL, glob pattern or model directory. Repeat it to upload several models in parallel",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "weather",
						Usage: "Weather file to use with the model",
					},
				},
				Action: uploadAction(logger, envRepo),
			},
			{
				Name:  "register",
				Usage: "Register an already uploaded model as a job",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session-id",
						Usage:    "Upload id the model was stored under",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Original file name of the model",
						Required: true,
					},
				},
				Action: registerAction(logger, envRepo),
			},
		},
	}
}
