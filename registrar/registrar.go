// Package registrar tells the job service about uploaded models.
package registrar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/alfalfa-io/model-uploader/internal/httperror"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/machinebox/graphql"
)

// ErrNotDelivered marks registration failures where the job service provably did not process
// the request. Only these can be sent again without risking a duplicate job.
var ErrNotDelivered = errors.New("registration request not delivered")

const addJobMutation = `mutation addJobMutation($osmName: String!, $uploadID: String!) {
  addJob(osmName: $osmName, uploadID: $uploadID)
}`

// Acknowledgement is the job service's answer to a registration.
type Acknowledgement struct {
	// Result is the raw addJob result.
	Result json.RawMessage
}

// Client registers uploaded models as simulation jobs over GraphQL.
type Client struct {
	client      *graphql.Client
	accessToken string
	logger      log.Logger
}

// NewClient creates a client for the GraphQL endpoint. Non-2xx responses are turned into errors
// before the GraphQL layer sees them.
func NewClient(endpoint string, httpClient *http.Client, accessToken string, logger log.Logger) *Client {
	checked := *httpClient
	checked.Transport = statusCheckingTransport{next: httpClient.Transport}

	client := graphql.NewClient(endpoint, graphql.WithHTTPClient(&checked))
	client.Log = func(s string) {
		logger.Debugf("%s", s)
	}

	return &Client{
		client:      client,
		accessToken: accessToken,
		logger:      logger,
	}
}

// Register records that the object uploaded under sessionID should become a job.
// objectName is the original file name, not the storage key.
func (c *Client) Register(ctx context.Context, objectName, sessionID string) (Acknowledgement, error) {
	req := graphql.NewRequest(addJobMutation)
	req.Var("osmName", objectName)
	req.Var("uploadID", sessionID)
	if c.accessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	}

	var resp struct {
		AddJob json.RawMessage `json:"addJob"`
	}
	if err := c.client.Run(ctx, req, &resp); err != nil {
		return Acknowledgement{}, fmt.Errorf("addJob(%s, %s): %w", objectName, sessionID, err)
	}

	c.logger.Debugf("addJob response: %s", string(resp.AddJob))

	return Acknowledgement{Result: resp.AddJob}, nil
}

type statusCheckingTransport struct {
	next http.RoundTripper
}

func (t statusCheckingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}

	resp, err := next.RoundTrip(req)
	if err != nil {
		if notDelivered(nil, err) {
			return nil, fmt.Errorf("%w: %w", ErrNotDelivered, err)
		}
		return nil, err
	}
	if httperror.IsSuccess(resp.StatusCode) {
		return resp, nil
	}

	defer func() {
		_ = resp.Body.Close()
	}()
	statusErr := httperror.Unwrap(resp)
	if notDelivered(resp, nil) {
		return nil, fmt.Errorf("%w: %w", ErrNotDelivered, statusErr)
	}
	return nil, statusErr
}
