package config

import (
	"fmt"
	"testing"

	"github.com/alfalfa-io/model-uploader/credential"
	"github.com/bitrise-io/go-utils/v2/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	delete(repo.envVars, key)
	return nil
}

func (repo fakeEnvRepo) List() []string {
	var envs []string
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

func staticEnv() map[string]string {
	return map[string]string{
		APIURLKey:           "https://alfalfa.example.com/",
		AccessTokenKey:      "token",
		UploadURLKey:        "https://alfalfa.s3.amazonaws.com",
		UploadPolicyKey:     "cG9saWN5",
		UploadCredentialKey: "AKIAEXAMPLE/20500101/us-west-1/s3/aws4_request",
		UploadDateKey:       "20500101T000000Z",
		UploadSignatureKey:  "signature",
	}
}

func TestLoad_StaticCredential(t *testing.T) {
	cfg, err := Load(fakeEnvRepo{envVars: staticEnv()})
	require.NoError(t, err)

	assert.Equal(t, "https://alfalfa.example.com", cfg.APIURL)
	assert.Equal(t, "https://alfalfa.example.com/graphql", cfg.GraphQLURL())
	assert.Equal(t, Secret("token"), cfg.AccessToken)
	assert.True(t, cfg.Credential.Static())
	assert.False(t, cfg.Storage.Enabled())
	assert.Equal(t, uint(2), cfg.RegisterRetries)

	bundle := cfg.Credential.Bundle()
	assert.Equal(t, credential.Bundle{
		URL:        "https://alfalfa.s3.amazonaws.com",
		ACL:        credential.DefaultACL,
		Policy:     "cG9saWN5",
		Algorithm:  credential.DefaultAlgorithm,
		Credential: "AKIAEXAMPLE/20500101/us-west-1/s3/aws4_request",
		Date:       "20500101T000000Z",
		Signature:  "signature",
	}, bundle)
}

func TestLoad_APICredential(t *testing.T) {
	cfg, err := Load(fakeEnvRepo{envVars: map[string]string{
		APIURLKey:          "http://localhost",
		BucketKey:          "alfalfa",
		RegionKey:          "us-west-1",
		AccessKeyIDKey:     "AKIAEXAMPLE",
		SecretAccessKeyKey: "secret",
		EndpointKey:        "http://localhost:9000",
		RegisterRetriesKey: "5",
	}})
	require.NoError(t, err)

	assert.False(t, cfg.Credential.Static())
	assert.Empty(t, cfg.Credential.ACL)
	assert.True(t, cfg.Storage.Enabled())
	assert.Equal(t, uint(5), cfg.RegisterRetries)

	params := cfg.Storage.Params()
	assert.Equal(t, "alfalfa", params.Bucket)
	assert.Equal(t, "us-west-1", params.Region)
	assert.Equal(t, "secret", params.SecretAccessKey)
	assert.Equal(t, "http://localhost:9000", params.Endpoint)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(envs map[string]string)
		wantErr string
	}{
		{
			name:    "missing api url",
			modify:  func(envs map[string]string) { delete(envs, APIURLKey) },
			wantErr: "ALFALFA_URL is not defined",
		},
		{
			name: "incomplete upload form",
			modify: func(envs map[string]string) {
				delete(envs, UploadPolicyKey)
				delete(envs, UploadSignatureKey)
			},
			wantErr: "invalid upload credential, missing: policy, x-amz-signature",
		},
		{
			name:    "bucket without region",
			modify:  func(envs map[string]string) { envs[BucketKey] = "alfalfa" },
			wantErr: "AWS_REGION is required when UPLOAD_BUCKET is set",
		},
		{
			name:    "invalid retries",
			modify:  func(envs map[string]string) { envs[RegisterRetriesKey] = "many" },
			wantErr: "invalid REGISTER_RETRIES (many)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := staticEnv()
			tt.modify(envs)

			_, err := Load(fakeEnvRepo{envVars: envs})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_String(t *testing.T) {
	assert.Equal(t, "*****", Secret("my secret").String())
	assert.Equal(t, "", Secret("").String())
	assert.Equal(t, "token: *****", fmt.Sprintf("token: %s", Secret("abc")))
}

func TestConfig_Print(t *testing.T) {
	cfg, err := Load(fakeEnvRepo{envVars: staticEnv()})
	require.NoError(t, err)

	mockLogger := new(mocks.Logger)
	mockLogger.On("Infof", mock.Anything).Return()
	mockLogger.On("Printf", mock.Anything, mock.Anything, mock.Anything).Return()

	cfg.Print(mockLogger)

	mockLogger.AssertExpectations(t)
	for _, call := range mockLogger.Calls {
		for _, arg := range call.Arguments {
			assert.NotEqual(t, "token", fmt.Sprint(arg))
			assert.NotEqual(t, "signature", fmt.Sprint(arg))
		}
	}
	mockLogger.AssertCalled(t, "Printf", "- %s: %s", AccessTokenKey, "*****")
}
