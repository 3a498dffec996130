package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStaticProvider_ExpiryFromPolicy(t *testing.T) {
	provider, err := NewStaticProvider(testBundle())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2050, 1, 1, 12, 0, 0, 0, time.UTC), provider.bundle.ExpiresAt.UTC())
}

func TestNewStaticProvider_Invalid(t *testing.T) {
	_, err := NewStaticProvider(Bundle{})
	require.Error(t, err)
}

func TestStaticProvider_Credential(t *testing.T) {
	provider, err := NewStaticProvider(testBundle())
	require.NoError(t, err)

	provider.now = func() time.Time { return time.Date(2049, 12, 31, 0, 0, 0, 0, time.UTC) }
	bundle, err := provider.Credential(context.Background(), "uploads/s1/model.osm")
	require.NoError(t, err)
	assert.Equal(t, "https://alfalfa.s3.amazonaws.com", bundle.URL)

	provider.now = func() time.Time { return time.Date(2051, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = provider.Credential(context.Background(), "uploads/s1/model.osm")
	require.ErrorIs(t, err, ErrExpired)
}

func TestStaticProvider_Canceled(t *testing.T) {
	provider, err := NewStaticProvider(testBundle())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = provider.Credential(ctx, "uploads/s1/model.osm")
	require.ErrorIs(t, err, context.Canceled)
}

func TestAPIProvider_Credential(t *testing.T) {
	policy := encodePolicy(`{"expiration":"2050-01-01T12:00:00.000Z"}`)

	var gotRequest uploadURLRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload-url", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"url": "http://minio:9000/alfalfa",
			"fields": {
				"key": "uploads/s1/model.osm",
				"X-Amz-Algorithm": "AWS4-HMAC-SHA256",
				"X-Amz-Credential": "minio/20500101/us-east-1/s3/aws4_request",
				"X-Amz-Date": "20500101T000000Z",
				"Policy": "` + policy + `",
				"X-Amz-Signature": "abc123",
				"success_action_status": "204"
			}
		}`))
	}))
	defer server.Close()

	logger := log.NewLogger()
	provider := NewAPIProvider(retryhttp.NewClient(logger), server.URL+"/", "token", logger)

	bundle, err := provider.Credential(context.Background(), "uploads/s1/model.osm")
	require.NoError(t, err)

	assert.Equal(t, "uploads/s1/model.osm", gotRequest.Name)
	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, Bundle{
		URL:        "http://minio:9000/alfalfa",
		Policy:     policy,
		Algorithm:  "AWS4-HMAC-SHA256",
		Credential: "minio/20500101/us-east-1/s3/aws4_request",
		Date:       "20500101T000000Z",
		Signature:  "abc123",
		Fields:     map[string]string{"success_action_status": "204"},
		ExpiresAt:  time.Date(2050, 1, 1, 12, 0, 0, 0, time.UTC),
	}, bundle)
}

func TestAPIProvider_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("not allowed"))
	}))
	defer server.Close()

	logger := log.NewLogger()
	provider := NewAPIProvider(retryhttp.NewClient(logger), server.URL, "", logger)

	_, err := provider.Credential(context.Background(), "uploads/s1/model.osm")
	require.Error(t, err)
	assert.Equal(t, "HTTP 401: not allowed", err.Error())
}

func TestAPIProvider_MissingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"fields": {}}`))
	}))
	defer server.Close()

	logger := log.NewLogger()
	provider := NewAPIProvider(retryhttp.NewClient(logger), server.URL, "", logger)

	_, err := provider.Credential(context.Background(), "uploads/s1/model.osm")
	require.EqualError(t, err, "upload form has no url")
}
