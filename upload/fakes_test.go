package upload

import (
	"context"
	"sync"

	"github.com/alfalfa-io/model-uploader/credential"
	"github.com/alfalfa-io/model-uploader/registrar"
	"github.com/alfalfa-io/model-uploader/transfer"
	"github.com/stretchr/testify/mock"
)

type transferScript func(ctx context.Context, req transfer.Request, attempt int, emit func(transfer.Event))

type scriptedExecutor struct {
	script transferScript

	mu       sync.Mutex
	requests []transfer.Request
}

func newScriptedExecutor(script transferScript) *scriptedExecutor {
	return &scriptedExecutor{script: script}
}

func (e *scriptedExecutor) Execute(ctx context.Context, req transfer.Request) <-chan transfer.Event {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	attempt := len(e.requests)
	e.mu.Unlock()

	events := make(chan transfer.Event)
	go func() {
		defer close(events)
		e.script(ctx, req, attempt, func(event transfer.Event) {
			events <- event
		})
	}()
	return events
}

func (e *scriptedExecutor) Requests() []transfer.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]transfer.Request(nil), e.requests...)
}

// emitProgress reports the given percentages and then the terminal event built for the session.
func emitProgress(terminal func(sessionID string) transfer.Event, percents ...int) transferScript {
	return func(ctx context.Context, req transfer.Request, attempt int, emit func(transfer.Event)) {
		for _, percent := range percents {
			emit(transfer.ProgressEvent(req.SessionID, percent))
		}
		emit(terminal(req.SessionID))
	}
}

func succeed(sessionID string) transfer.Event {
	return transfer.SuccessEvent(sessionID, []byte("ok"))
}

// blockUntilCanceled behaves like a stalled transfer.
func blockUntilCanceled(ctx context.Context, req transfer.Request, attempt int, emit func(transfer.Event)) {
	emit(transfer.ProgressEvent(req.SessionID, 10))
	<-ctx.Done()
	emit(transfer.CanceledEvent(req.SessionID, ctx.Err()))
}

type fakeCredentials struct {
	err error
}

func (p fakeCredentials) Credential(ctx context.Context, key string) (credential.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return credential.Bundle{}, err
	}
	if p.err != nil {
		return credential.Bundle{}, p.err
	}
	return credential.Bundle{
		URL:        "https://alfalfa.s3.amazonaws.com",
		ACL:        credential.DefaultACL,
		Policy:     "cG9saWN5",
		Algorithm:  credential.DefaultAlgorithm,
		Credential: "AKIAEXAMPLE/20500101/us-west-1/s3/aws4_request",
		Signature:  "signature",
	}, nil
}

type mockRegistrar struct {
	mock.Mock
}

func (m *mockRegistrar) Register(ctx context.Context, objectName, sessionID string) (registrar.Acknowledgement, error) {
	args := m.Called(ctx, objectName, sessionID)
	return args.Get(0).(registrar.Acknowledgement), args.Error(1)
}

type fakeChecker struct {
	exists bool
	err    error
}

func (c fakeChecker) ObjectExists(ctx context.Context, key string) (bool, error) {
	return c.exists, c.err
}

func sequentialIDs(ids ...string) func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[next%len(ids)]
		next++
		return id
	}
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) observe(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *statusRecorder) uploadingProgress() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var progress []int
	for _, status := range r.statuses {
		if status.State == StateUploading {
			progress = append(progress, status.Progress)
		}
	}
	return progress
}
