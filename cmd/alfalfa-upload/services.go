package main

import (
	"context"
	"fmt"

	"github.com/alfalfa-io/model-uploader/config"
	"github.com/alfalfa-io/model-uploader/credential"
	"github.com/alfalfa-io/model-uploader/registrar"
	"github.com/alfalfa-io/model-uploader/storage"
	"github.com/alfalfa-io/model-uploader/transfer"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
)

type services struct {
	credentials credential.Provider
	executor    transfer.Executor
	registrar   *registrar.Client
	// checker is nil when no bucket is configured
	checker *storage.S3ObjectChecker
}

func newServices(ctx context.Context, cfg config.Config, logger log.Logger) (services, error) {
	var provider credential.Provider
	if cfg.Credential.Static() {
		staticProvider, err := credential.NewStaticProvider(cfg.Credential.Bundle())
		if err != nil {
			return services{}, err
		}
		provider = staticProvider
	} else {
		provider = credential.NewAPIProvider(retryhttp.NewClient(logger), cfg.APIURL, string(cfg.AccessToken), logger)
	}

	s := services{
		credentials: provider,
		executor:    transfer.NewFormPostExecutor(transfer.DefaultHTTPClient(), logger),
		registrar:   registrar.NewClient(cfg.GraphQLURL(), registrar.NewHTTPClient(logger), string(cfg.AccessToken), logger),
	}

	if cfg.Storage.Enabled() {
		checker, err := storage.NewS3ObjectChecker(ctx, cfg.Storage.Params(), logger)
		if err != nil {
			return services{}, fmt.Errorf("storage: %w", err)
		}
		s.checker = checker
	}

	return s, nil
}
