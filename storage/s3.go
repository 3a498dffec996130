// Package storage looks up uploaded objects in the S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const (
	defaultNumRetries = 3
	defaultRetryWait  = 5 * time.Second
)

var errObjectNotFound = errors.New("object not found in s3 bucket")

// HeadObjectAPI is the part of the S3 client the checker needs.
type HeadObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Params ...
type S3Params struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the S3 endpoint, for S3 compatible stores like MinIO.
	Endpoint string
}

// S3ObjectChecker tells whether an object exists in a bucket.
type S3ObjectChecker struct {
	client     HeadObjectAPI
	bucket     string
	numRetries uint
	retryWait  time.Duration
	logger     log.Logger
}

// NewS3ObjectChecker creates a checker with an S3 client configured from params. Without an
// access key the default AWS credential chain is used.
func NewS3ObjectChecker(ctx context.Context, params S3Params, logger log.Logger) (*S3ObjectChecker, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	client, err := newS3Client(ctx, params, logger)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	return NewObjectChecker(client, params.Bucket, logger), nil
}

// NewObjectChecker ...
func NewObjectChecker(client HeadObjectAPI, bucket string, logger log.Logger) *S3ObjectChecker {
	return &S3ObjectChecker{
		client:     client,
		bucket:     bucket,
		numRetries: defaultNumRetries,
		retryWait:  defaultRetryWait,
		logger:     logger,
	}
}

// ObjectExists reports whether the key is present in the bucket. Missing objects are not
// retried, other errors are.
func (c *S3ObjectChecker) ObjectExists(ctx context.Context, key string) (bool, error) {
	exists := false
	err := retry.Times(c.numRetries).Wait(c.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			c.logger.Debugf("Retrying head object %s (attempt %d)", key, attempt+1)
		}

		err := c.headObject(ctx, key)
		switch {
		case err == nil:
			exists = true
			return nil, true
		case errors.Is(err, errObjectNotFound):
			c.logger.Debugf("key %s not found in bucket %s", key, c.bucket)
			return nil, true
		case ctx.Err() != nil:
			return err, true
		}

		c.logger.Debugf("head object %s: %s", key, err)
		return err, false
	})
	if err != nil {
		return false, fmt.Errorf("head object retries failed: %w", err)
	}

	return exists, nil
}

func (c *S3ObjectChecker) headObject(ctx context.Context, key string) error {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return errObjectNotFound
	}
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		if apiError.ErrorCode() == "NotFound" || apiError.ErrorCode() == "NoSuchKey" {
			return errObjectNotFound
		}
		return fmt.Errorf("aws api error: %w", err)
	}
	return fmt.Errorf("generic aws error: %w", err)
}

// newS3Client builds a client for the bucket's region. Static keys are used when both are set,
// otherwise the default AWS credential chain. A custom endpoint switches to path-style
// addressing, which S3 compatible stores expect.
func newS3Client(ctx context.Context, params S3Params, logger log.Logger) (*s3.Client, error) {
	if params.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
	}
	switch {
	case params.AccessKeyID != "" && params.SecretAccessKey != "":
		logger.Debugf("Using the configured access key for bucket %s", params.Bucket)
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(params.AccessKeyID, params.SecretAccessKey, "")))
	case params.AccessKeyID != "" || params.SecretAccessKey != "":
		logger.Warnf("Only one of the access key id and secret is set, falling back to the default credential chain")
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			logger.Debugf("Using S3 endpoint %s", params.Endpoint)
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
