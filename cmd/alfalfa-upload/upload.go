package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfalfa-io/model-uploader/config"
	"github.com/alfalfa-io/model-uploader/localfile"
	"github.com/alfalfa-io/model-uploader/registrar"
	"github.com/alfalfa-io/model-uploader/transfer"
	"github.com/alfalfa-io/model-uploader/upload"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/filedownloader"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	registerRetryWait  = 5 * time.Second
	maxParallelUploads = 10
)

func uploadAction(logger log.Logger, envRepo env.Repository) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(envRepo)
		if err != nil {
			return err
		}
		cfg.Print(logger)
		logger.Println()

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		resolver := localfile.NewResolver(
			filedownloader.NewDownloader(logger),
			pathutil.NewPathProvider(),
			pathutil.NewPathModifier(),
			pathutil.NewPathChecker(),
			logger,
		)
		defer func() {
			if err := resolver.Cleanup(); err != nil {
				logger.Warnf("Failed to remove temporary files: %s", err)
			}
		}()

		var models []transfer.File
		for _, source := range c.StringSlice("model") {
			model, err := resolver.Resolve(ctx, source)
			if err != nil {
				return err
			}
			models = append(models, model)
		}

		var weather transfer.File
		if source := c.String("weather"); source != "" {
			weatherFile, err := resolver.Resolve(ctx, source)
			if err != nil {
				return err
			}
			weather = weatherFile
		}

		svc, err := newServices(ctx, cfg, logger)
		if err != nil {
			return err
		}

		statuses := make([]upload.Status, len(models))
		g := new(errgroup.Group)
		g.SetLimit(maxParallelUploads)
		for i, model := range models {
			i, model := i, model
			g.Go(func() error {
				status, err := uploadModel(ctx, cfg, svc, model, weather, logger)
				statuses[i] = status
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		return report(statuses, logger)
	}
}

// uploadModel runs one upload session for the model and returns its final status.
func uploadModel(ctx context.Context, cfg config.Config, svc services, model, weather transfer.File, logger log.Logger) (upload.Status, error) {
	opts := []upload.Option{upload.WithObserver(progressPrinter(logger))}
	if svc.checker != nil {
		opts = append(opts, upload.WithObjectChecker(svc.checker))
	}
	uploader := upload.NewUploader(svc.executor, svc.credentials, svc.registrar, logger, opts...)

	uploader.SelectModelFile(model)
	uploader.SelectWeatherFile(weather)

	if accepted, _ := uploader.StartUpload(ctx); !accepted {
		return uploader.Status(), nil
	}
	// the transfer stops on its own when ctx is canceled
	if err := uploader.Wait(context.Background()); err != nil {
		return upload.Status{}, err
	}

	status := uploader.Status()
	if status.Registration == upload.RegistrationFailed && cfg.RegisterRetries > 0 && registrationRetryable(status.Err) {
		retryRegistration(ctx, uploader, status.ModelHint, cfg.RegisterRetries, logger)
		status = uploader.Status()
	}

	return status, nil
}

// registrationRetryable reports whether a failed registration can be sent again without
// risking a duplicate job.
func registrationRetryable(err error) bool {
	return errors.Is(err, registrar.ErrNotDelivered)
}

func retryRegistration(ctx context.Context, uploader *upload.Uploader, name string, retries uint, logger log.Logger) {
	err := retry.Times(retries-1).Wait(registerRetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if ctx.Err() != nil {
			return ctx.Err(), true
		}

		logger.Warnf("Retrying job registration of %s (%d/%d)", name, attempt+1, retries)
		err := uploader.RetryRegistration(ctx)
		return err, !registrationRetryable(err)
	})
	if err != nil {
		logger.Debugf("Registration retries of %s stopped: %s", name, err)
	}
}

func report(statuses []upload.Status, logger log.Logger) error {
	var errs []error
	for _, status := range statuses {
		if err := reportModel(status, logger); err != nil {
			errs = append(errs, err)
		}
	}

	if len(statuses) > 1 {
		logger.Println()
		logger.Printf("%d of %d models uploaded and registered", len(statuses)-len(errs), len(statuses))
	}
	return errors.Join(errs...)
}

func reportModel(status upload.Status, logger log.Logger) error {
	logger.Println()
	if !status.State.Terminal() {
		logger.Errorf("Model %s was not uploaded: %s", status.ModelHint, status.Notice)
		return fmt.Errorf("%s: %s", status.ModelHint, status.Notice)
	}

	switch upload.SeverityOf(status.Err) {
	case upload.SeverityNone:
		logger.Donef("Model %s uploaded to %s and registered", status.ModelHint, status.StorageKey)
		logger.Printf("Upload id: %s", status.SessionID)
		return nil
	case upload.SeverityInconsistent:
		logger.Errorf("Model %s is uploaded to %s but it is not registered as a job.", status.ModelHint, status.StorageKey)
		logger.Printf("Register it later with: alfalfa-upload register --session-id %s --name %s", status.SessionID, status.ModelHint)
	default:
		logger.Warnf("Run the upload of %s again to retry it.", status.ModelHint)
	}
	return fmt.Errorf("%s: %w", status.ModelHint, status.Err)
}

func progressPrinter(logger log.Logger) upload.Observer {
	lastPrinted := -1
	return func(status upload.Status) {
		if status.State.Terminal() {
			if lastPrinted >= 0 {
				logger.Printf("Upload of %s %s", status.ModelHint, status.State)
			}
			lastPrinted = -1
			return
		}
		if status.State != upload.StateUploading {
			lastPrinted = -1
			return
		}

		if status.Indeterminate {
			if lastPrinted < 0 {
				logger.Printf("Uploading %s (size unknown)...", status.ModelHint)
				lastPrinted = 0
			}
			return
		}
		if status.Progress == lastPrinted {
			return
		}
		if lastPrinted < 0 || status.Progress == 100 || status.Progress >= lastPrinted+10 {
			logger.Printf("Uploading %s: %d%%", status.ModelHint, status.Progress)
			lastPrinted = status.Progress
		}
	}
}
