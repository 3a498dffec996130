// Package httperror turns unexpected HTTP responses into errors.
package httperror

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBodySize = 4096

// Unwrap reads (a bounded amount of) the response body and returns it as an error
// together with the status code.
func Unwrap(resp *http.Response) error {
	errorResp, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return err
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(errorResp)))
}

// IsSuccess ...
func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
