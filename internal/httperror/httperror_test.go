package httperror

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrap(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusForbidden,
		Body:       io.NopCloser(strings.NewReader("<Error><Code>AccessDenied</Code></Error>\n")),
	}

	err := Unwrap(resp)
	require.Error(t, err)
	assert.Equal(t, "HTTP 403: <Error><Code>AccessDenied</Code></Error>", err.Error())
}

func TestUnwrap_LargeBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusInternalServerError,
		Body:       io.NopCloser(strings.NewReader(strings.Repeat("x", 3*maxErrorBodySize))),
	}

	err := Unwrap(resp)
	require.Error(t, err)
	assert.Len(t, err.Error(), len("HTTP 500: ")+maxErrorBodySize)
}

func TestIsSuccess(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{code: 199, want: false},
		{code: 200, want: true},
		{code: 204, want: true},
		{code: 299, want: true},
		{code: 300, want: false},
		{code: 404, want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSuccess(tt.code), "status %d", tt.code)
	}
}
