package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/alfalfa-io/model-uploader/credential"
	"github.com/alfalfa-io/model-uploader/internal/httperror"
	"github.com/bitrise-io/go-utils/v2/log"
)

const (
	fileFieldName      = "file"
	defaultContentType = "application/octet-stream"

	maxResponseSize = 64 * 1024
	eventBufferSize = 16
)

// FormPostExecutor uploads files with a multipart POST form signed by a credential bundle.
// It does not retry: a failed transfer is reported and the caller decides what happens next.
type FormPostExecutor struct {
	httpClient *http.Client
	logger     log.Logger
}

// NewFormPostExecutor ...
func NewFormPostExecutor(httpClient *http.Client, logger log.Logger) *FormPostExecutor {
	return &FormPostExecutor{
		httpClient: httpClient,
		logger:     logger,
	}
}

// Execute starts the transfer in the background. The returned channel must be drained until
// it is closed.
func (e *FormPostExecutor) Execute(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, eventBufferSize)
	em := &emitter{
		ctx:       ctx,
		sessionID: req.SessionID,
		events:    events,
	}

	go e.run(ctx, req, em)

	return events
}

func (e *FormPostExecutor) run(ctx context.Context, req Request, em *emitter) {
	if err := ctx.Err(); err != nil {
		em.finish(CanceledEvent(req.SessionID, err))
		return
	}

	key := StorageKey(req.SessionID, req.File.Name())
	size := req.File.Size()

	prefix, suffix, contentType, err := encodeForm(req.Credential.FormFields(key), req.File.Name(), fileContentType(req.File))
	if err != nil {
		em.finish(FailureEvent(req.SessionID, fmt.Errorf("build upload form: %w", err)))
		return
	}

	content, err := req.File.Open()
	if err != nil {
		em.finish(FailureEvent(req.SessionID, fmt.Errorf("open %s: %w", req.File.Name(), err)))
		return
	}
	defer func(content io.ReadCloser) {
		if err := content.Close(); err != nil {
			e.logger.Warnf("Failed to close %s: %s", req.File.Name(), err)
		}
	}(content)

	progress := newProgressReader(content, size, em.progress)
	progress.report()

	body := io.MultiReader(bytes.NewReader(prefix), progress, bytes.NewReader(suffix))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Credential.URL, body)
	if err != nil {
		em.finish(FailureEvent(req.SessionID, err))
		return
	}
	httpReq.Header.Set("Content-Type", contentType)
	if size >= 0 {
		httpReq.ContentLength = int64(len(prefix)) + size + int64(len(suffix))
	} else {
		httpReq.ContentLength = -1
	}

	e.logger.Debugf("POST %s (key: %s, content length: %d)", req.Credential.URL, key, httpReq.ContentLength)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		em.finish(e.transportError(ctx, req.SessionID, err))
		return
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			e.logger.Warnf("Failed to close response body: %s", err)
		}
	}(resp.Body)

	if !httperror.IsSuccess(resp.StatusCode) {
		em.finish(FailureEvent(req.SessionID, httperror.Unwrap(resp)))
		return
	}

	response, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		em.finish(e.transportError(ctx, req.SessionID, fmt.Errorf("read response: %w", err)))
		return
	}
	e.logger.Debugf("Upload response (HTTP %d): %s", resp.StatusCode, string(response))

	em.finish(SuccessEvent(req.SessionID, response))
}

func (e *FormPostExecutor) transportError(ctx context.Context, sessionID string, err error) Event {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return CanceledEvent(sessionID, ctxErr)
	}
	return FailureEvent(sessionID, err)
}

// encodeForm renders everything of the multipart body except the file content: the form
// fields with the file part's header, and the closing boundary.
func encodeForm(fields []credential.Field, fileName, fileContentType string) (prefix []byte, suffix []byte, contentType string, err error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, field := range fields {
		if err := writer.WriteField(field.Name, field.Value); err != nil {
			return nil, nil, "", err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fileFieldName, quoteEscaper.Replace(fileName)))
	header.Set("Content-Type", fileContentType)
	if _, err := writer.CreatePart(header); err != nil {
		return nil, nil, "", err
	}

	prefix = append([]byte(nil), buf.Bytes()...)
	buf.Reset()

	if err := writer.Close(); err != nil {
		return nil, nil, "", err
	}
	suffix = append([]byte(nil), buf.Bytes()...)

	return prefix, suffix, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func fileContentType(file File) string {
	if typed, ok := file.(ContentTyper); ok && typed.ContentType() != "" {
		return typed.ContentType()
	}
	return defaultContentType
}

// emitter guarantees that nothing is sent after the terminal event.
type emitter struct {
	ctx       context.Context
	sessionID string
	events    chan Event

	mu         sync.Mutex
	terminated bool
}

func (em *emitter) progress(percent int) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.terminated {
		return
	}
	select {
	case em.events <- ProgressEvent(em.sessionID, percent):
	case <-em.ctx.Done():
	}
}

func (em *emitter) finish(event Event) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.terminated {
		return
	}
	em.terminated = true
	em.events <- event
	close(em.events)
}
