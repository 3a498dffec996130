package transfer

import (
	"net/http"
	"time"
)

// DefaultHTTPClient creates an HTTP client suited for long running uploads.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No timeout - the transfer is bounded by its context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:          10,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			Proxy:                 http.ProxyFromEnvironment,
		},
	}
}
