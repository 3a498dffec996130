package registrar

import (
	"context"
	"errors"
	"net/http"
	"syscall"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// NewHTTPClient returns a retrying HTTP client for registration calls. A mutation is only
// retried when the service provably did not process it, so a job is never added twice.
func NewHTTPClient(logger log.Logger) *http.Client {
	return newRetryClient(logger).StandardClient()
}

func newRetryClient(logger log.Logger) *retryablehttp.Client {
	client := retryhttp.NewClient(logger)
	client.CheckRetry = checkRetry
	return client
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	return notDelivered(resp, err), nil
}

// notDelivered reports whether the request provably never reached the job service, or was
// rejected before it was processed.
func notDelivered(resp *http.Response, err error) bool {
	if err != nil {
		return errors.Is(err, syscall.ECONNREFUSED)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
