package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	errs  []error
	calls int
	keys  []string
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.keys = append(f.keys, *params.Bucket+"/"+*params.Key)
	var err error
	if f.calls < len(f.errs) {
		err = f.errs[f.calls]
	}
	f.calls++
	if err != nil {
		return nil, err
	}
	return &s3.HeadObjectOutput{}, nil
}

func newTestChecker(client HeadObjectAPI) *S3ObjectChecker {
	checker := NewObjectChecker(client, "alfalfa", log.NewLogger())
	checker.retryWait = 0
	return checker
}

func TestS3ObjectChecker_ObjectExists(t *testing.T) {
	transient := errors.New("connection reset by peer")

	tests := []struct {
		name      string
		errs      []error
		want      bool
		wantErr   bool
		wantCalls int
	}{
		{name: "exists", want: true, wantCalls: 1},
		{name: "typed not found", errs: []error{&types.NotFound{}}, want: false, wantCalls: 1},
		{name: "generic not found", errs: []error{&smithy.GenericAPIError{Code: "NotFound"}}, want: false, wantCalls: 1},
		{name: "transient error", errs: []error{transient, transient}, want: true, wantCalls: 3},
		{name: "api error", errs: []error{&smithy.GenericAPIError{Code: "AccessDenied"}}, want: true, wantCalls: 2},
		{name: "retries exhausted", errs: []error{transient, transient, transient, transient}, wantErr: true, wantCalls: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeS3{errs: tt.errs}
			checker := newTestChecker(client)

			got, err := checker.ObjectExists(context.Background(), "uploads/S1/model.osm")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, client.calls)
			assert.Equal(t, "alfalfa/uploads/S1/model.osm", client.keys[0])
		})
	}
}

func TestS3ObjectChecker_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeS3{errs: []error{context.Canceled, context.Canceled}}
	checker := newTestChecker(client)

	_, err := checker.ObjectExists(ctx, "uploads/S1/model.osm")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.calls)
}

func TestNewS3ObjectChecker_Validation(t *testing.T) {
	_, err := NewS3ObjectChecker(context.Background(), S3Params{Region: "us-west-1"}, log.NewLogger())
	assert.EqualError(t, err, "bucket must not be empty")

	_, err = NewS3ObjectChecker(context.Background(), S3Params{Bucket: "alfalfa"}, log.NewLogger())
	assert.EqualError(t, err, "s3 client: region must not be empty")
}

func TestNewS3ObjectChecker(t *testing.T) {
	checker, err := NewS3ObjectChecker(context.Background(), S3Params{
		Region:          "us-west-1",
		Bucket:          "alfalfa",
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
		Endpoint:        "http://localhost:9000",
	}, log.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, "alfalfa", checker.bucket)
}

func TestNewS3Client(t *testing.T) {
	t.Setenv("AWS_ENDPOINT_URL", "")
	t.Setenv("AWS_ENDPOINT_URL_S3", "")

	tests := []struct {
		name          string
		params        S3Params
		wantEndpoint  string
		wantPathStyle bool
	}{
		{
			name:   "aws",
			params: S3Params{Region: "us-west-1", Bucket: "alfalfa"},
		},
		{
			name: "s3 compatible endpoint",
			params: S3Params{
				Region:          "us-east-1",
				Bucket:          "alfalfa",
				AccessKeyID:     "minio",
				SecretAccessKey: "minio123",
				Endpoint:        "http://localhost:9000",
			},
			wantEndpoint:  "http://localhost:9000",
			wantPathStyle: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := newS3Client(context.Background(), tt.params, log.NewLogger())
			require.NoError(t, err)

			opts := client.Options()
			assert.Equal(t, tt.params.Region, opts.Region)
			assert.Equal(t, tt.wantPathStyle, opts.UsePathStyle)
			if tt.wantEndpoint == "" {
				assert.Nil(t, opts.BaseEndpoint)
			} else {
				require.NotNil(t, opts.BaseEndpoint)
				assert.Equal(t, tt.wantEndpoint, *opts.BaseEndpoint)
			}
		})
	}
}

func TestNewS3Client_StaticCredentials(t *testing.T) {
	client, err := newS3Client(context.Background(), S3Params{
		Region:          "us-west-1",
		Bucket:          "alfalfa",
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secret",
	}, log.NewLogger())
	require.NoError(t, err)

	creds, err := client.Options().Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}
