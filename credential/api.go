package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alfalfa-io/model-uploader/internal/httperror"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
)

type uploadURLRequest struct {
	Name string `json:"name"`
}

type uploadURLResponse struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// APIProvider asks the backend for a pre-signed upload form for every object key.
type APIProvider struct {
	httpClient  *retryablehttp.Client
	baseURL     string
	accessToken string
	logger      log.Logger
}

// NewAPIProvider ...
func NewAPIProvider(client *retryablehttp.Client, baseURL string, accessToken string, logger log.Logger) *APIProvider {
	return &APIProvider{
		httpClient:  client,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		logger:      logger,
	}
}

// Credential requests a form for the given key from the upload-url endpoint.
func (p *APIProvider) Credential(ctx context.Context, key string) (Bundle, error) {
	url := fmt.Sprintf("%s/upload-url", p.baseURL)

	body, err := json.Marshal(uploadURLRequest{Name: key})
	if err != nil {
		return Bundle{}, err
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return Bundle{}, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	if p.accessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.accessToken))
	}

	p.logger.Debugf("Requesting upload form for %s", key)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Bundle{}, err
	}
	defer func(body io.ReadCloser) {
		err := body.Close()
		if err != nil {
			p.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return Bundle{}, httperror.Unwrap(resp)
	}

	var response uploadURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return Bundle{}, fmt.Errorf("decode upload form: %w", err)
	}

	return bundleFromForm(response)
}

func bundleFromForm(form uploadURLResponse) (Bundle, error) {
	if form.URL == "" {
		return Bundle{}, errors.New("upload form has no url")
	}

	bundle := Bundle{
		URL:    form.URL,
		Fields: map[string]string{},
	}
	for name, value := range form.Fields {
		switch strings.ToLower(name) {
		case FieldKey:
			// the key is always derived from the session
		case FieldACL:
			bundle.ACL = value
		case FieldPolicy:
			bundle.Policy = value
		case FieldAlgorithm:
			bundle.Algorithm = value
		case FieldCredential:
			bundle.Credential = value
		case FieldDate:
			bundle.Date = value
		case FieldSignature:
			bundle.Signature = value
		case FieldSecurityToken:
			bundle.SecurityToken = value
		default:
			bundle.Fields[name] = value
		}
	}

	if bundle.Policy != "" {
		if expiration, err := PolicyExpiration(bundle.Policy); err == nil {
			bundle.ExpiresAt = expiration
		}
	}

	return bundle, nil
}
