// Package config reads the uploader's configuration from the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alfalfa-io/model-uploader/credential"
	"github.com/alfalfa-io/model-uploader/storage"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Environment variables.
const (
	APIURLKey            = "ALFALFA_URL"
	AccessTokenKey       = "ALFALFA_TOKEN"
	UploadURLKey         = "UPLOAD_URL"
	UploadACLKey         = "UPLOAD_ACL"
	UploadPolicyKey      = "UPLOAD_POLICY"
	UploadAlgorithmKey   = "UPLOAD_ALGORITHM"
	UploadCredentialKey  = "UPLOAD_CREDENTIAL"
	UploadDateKey        = "UPLOAD_DATE"
	UploadSignatureKey   = "UPLOAD_SIGNATURE"
	UploadSecurityKey    = "UPLOAD_SECURITY_TOKEN"
	BucketKey            = "UPLOAD_BUCKET"
	RegionKey            = "AWS_REGION"
	AccessKeyIDKey       = "AWS_ACCESS_KEY_ID"
	SecretAccessKeyKey   = "AWS_SECRET_ACCESS_KEY"
	EndpointKey          = "AWS_ENDPOINT_URL"
	RegisterRetriesKey   = "REGISTER_RETRIES"
	defaultRegisterRetry = 2
)

// Secret is a string that is not revealed when printed.
type Secret string

// String ...
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "*****"
}

// CredentialConfig is a pre-signed upload form given in the environment. When it is empty the
// form is requested from the API for every upload.
type CredentialConfig struct {
	URL           string
	ACL           string
	Policy        string
	Algorithm     string
	Credential    string
	Date          string
	Signature     Secret
	SecurityToken Secret
}

// Static reports whether a pre-signed form is configured.
func (c CredentialConfig) Static() bool {
	return c.URL != ""
}

// Bundle ...
func (c CredentialConfig) Bundle() credential.Bundle {
	return credential.Bundle{
		URL:           c.URL,
		ACL:           c.ACL,
		Policy:        c.Policy,
		Algorithm:     c.Algorithm,
		Credential:    c.Credential,
		Date:          c.Date,
		Signature:     string(c.Signature),
		SecurityToken: string(c.SecurityToken),
	}
}

// StorageConfig gives read access to the upload bucket. It is optional.
type StorageConfig struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey Secret
	Endpoint        string
}

// Enabled ...
func (c StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// Params ...
func (c StorageConfig) Params() storage.S3Params {
	return storage.S3Params{
		Region:          c.Region,
		Bucket:          c.Bucket,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: string(c.SecretAccessKey),
		Endpoint:        c.Endpoint,
	}
}

// Config ...
type Config struct {
	APIURL          string
	AccessToken     Secret
	Credential      CredentialConfig
	Storage         StorageConfig
	// RegisterRetries limits how many times a registration is sent again after the job
	// service provably did not receive it.
	RegisterRetries uint
}

// Load reads and validates the configuration.
func Load(envRepo env.Repository) (Config, error) {
	get := func(key string) string {
		return strings.TrimSpace(envRepo.Get(key))
	}

	apiURL := get(APIURLKey)
	if apiURL == "" {
		return Config{}, fmt.Errorf("%s is not defined", APIURLKey)
	}

	cfg := Config{
		APIURL:      strings.TrimSuffix(apiURL, "/"),
		AccessToken: Secret(get(AccessTokenKey)),
		Credential: CredentialConfig{
			URL:           get(UploadURLKey),
			ACL:           get(UploadACLKey),
			Policy:        get(UploadPolicyKey),
			Algorithm:     get(UploadAlgorithmKey),
			Credential:    get(UploadCredentialKey),
			Date:          get(UploadDateKey),
			Signature:     Secret(get(UploadSignatureKey)),
			SecurityToken: Secret(get(UploadSecurityKey)),
		},
		Storage: StorageConfig{
			Bucket:          get(BucketKey),
			Region:          get(RegionKey),
			AccessKeyID:     get(AccessKeyIDKey),
			SecretAccessKey: Secret(get(SecretAccessKeyKey)),
			Endpoint:        get(EndpointKey),
		},
		RegisterRetries: defaultRegisterRetry,
	}

	if cfg.Credential.Static() {
		if cfg.Credential.ACL == "" {
			cfg.Credential.ACL = credential.DefaultACL
		}
		if cfg.Credential.Algorithm == "" {
			cfg.Credential.Algorithm = credential.DefaultAlgorithm
		}
		if err := cfg.Credential.Bundle().Validate(); err != nil {
			return Config{}, err
		}
	}

	if cfg.Storage.Enabled() && cfg.Storage.Region == "" {
		return Config{}, fmt.Errorf("%s is required when %s is set", RegionKey, BucketKey)
	}

	if retries := get(RegisterRetriesKey); retries != "" {
		value, err := strconv.ParseUint(retries, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s (%s): %w", RegisterRetriesKey, retries, err)
		}
		cfg.RegisterRetries = uint(value)
	}

	return cfg, nil
}

// GraphQLURL ...
func (c Config) GraphQLURL() string {
	return c.APIURL + "/graphql"
}

// Print logs the configuration with secrets redacted.
func (c Config) Print(logger log.Logger) {
	logger.Infof("Configuration:")
	logger.Printf("- %s: %s", APIURLKey, c.APIURL)
	logger.Printf("- %s: %s", AccessTokenKey, printable(c.AccessToken.String()))
	if c.Credential.Static() {
		logger.Printf("- %s: %s", UploadURLKey, c.Credential.URL)
		logger.Printf("- %s: %s", UploadACLKey, c.Credential.ACL)
		logger.Printf("- %s: %s", UploadCredentialKey, c.Credential.Credential)
		logger.Printf("- %s: %s", UploadSignatureKey, printable(c.Credential.Signature.String()))
	} else {
		logger.Printf("- upload form: requested from %s/upload-url", c.APIURL)
	}
	if c.Storage.Enabled() {
		logger.Printf("- %s: %s (%s)", BucketKey, c.Storage.Bucket, c.Storage.Region)
	}
	logger.Printf("- %s: %d", RegisterRetriesKey, c.RegisterRetries)
}

func printable(value string) string {
	if value == "" {
		return "<unset>"
	}
	return value
}
