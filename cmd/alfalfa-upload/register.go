package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alfalfa-io/model-uploader/config"
	"github.com/alfalfa-io/model-uploader/registrar"
	"github.com/alfalfa-io/model-uploader/transfer"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/urfave/cli/v2"
)

var errObjectMissing = errors.New("uploaded object not found")

func registerAction(logger log.Logger, envRepo env.Repository) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(envRepo)
		if err != nil {
			return err
		}
		cfg.Print(logger)
		logger.Println()

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newServices(ctx, cfg, logger)
		if err != nil {
			return err
		}

		sessionID := c.String("session-id")
		name := c.String("name")

		if svc.checker != nil {
			key := transfer.StorageKey(sessionID, name)
			exists, err := svc.checker.ObjectExists(ctx, key)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: %s", errObjectMissing, key)
			}
		}

		var ack registrar.Acknowledgement
		err = retry.Times(cfg.RegisterRetries).Wait(registerRetryWait).TryWithAbort(func(attempt uint) (error, bool) {
			if attempt > 0 {
				logger.Warnf("Retrying job registration (%d/%d)", attempt, cfg.RegisterRetries)
			}

			result, err := svc.registrar.Register(ctx, name, sessionID)
			if err != nil {
				logger.Debugf("register: %s", err)
				return err, ctx.Err() != nil || !registrationRetryable(err)
			}
			ack = result
			return nil, true
		})
		if err != nil {
			return fmt.Errorf("job registration failed: %w", err)
		}

		logger.Donef("Registered %s (upload id: %s): %s", name, sessionID, string(ack.Result))
		return nil
	}
}
