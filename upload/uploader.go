package upload

import (
	"context"
	"fmt"
	"sync"

	"github.com/alfalfa-io/model-uploader/credential"
	"github.com/alfalfa-io/model-uploader/registrar"
	"github.com/alfalfa-io/model-uploader/transfer"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Registrar records uploaded objects as jobs.
type Registrar interface {
	Register(ctx context.Context, objectName, sessionID string) (registrar.Acknowledgement, error)
}

// ObjectChecker looks up objects in the storage bucket.
type ObjectChecker interface {
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// Observer is called with a snapshot after every state change. Calls are made one at a time
// and in order. An observer must not call back into the Uploader.
type Observer func(Status)

// Option configures an Uploader.
type Option func(*Uploader)

// WithObserver ...
func WithObserver(observer Observer) Option {
	return func(u *Uploader) {
		u.observers = append(u.observers, observer)
	}
}

// WithObjectChecker makes RetryRegistration confirm the object exists before registering it.
func WithObjectChecker(checker ObjectChecker) Option {
	return func(u *Uploader) {
		u.checker = checker
	}
}

// WithSessionIDGenerator ...
func WithSessionIDGenerator(newID func() string) Option {
	return func(u *Uploader) {
		u.newID = newID
	}
}

// Uploader drives a Session: it runs transfers, feeds their events into the session and
// registers completed uploads. It is safe for concurrent use.
type Uploader struct {
	executor    transfer.Executor
	credentials credential.Provider
	registrar   Registrar
	checker     ObjectChecker
	logger      log.Logger
	observers   []Observer
	newID       func() string

	mu       sync.Mutex
	session  *Session
	cancel   context.CancelFunc
	inflight int
	idle     chan struct{}

	notifyMu sync.Mutex
}

// NewUploader ...
func NewUploader(executor transfer.Executor, credentials credential.Provider, registrar Registrar, logger log.Logger, opts ...Option) *Uploader {
	u := &Uploader{
		executor:    executor,
		credentials: credentials,
		registrar:   registrar,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.session = NewSession(u.newID)
	return u
}

// SelectModelFile starts a new session for the file. An upload in flight is canceled and its
// remaining events are ignored.
func (u *Uploader) SelectModelFile(file transfer.File) {
	if file == nil {
		u.logger.Warnf("No model file selected")
		return
	}

	u.mu.Lock()

	if u.session.State() == StateUploading && u.cancel != nil {
		u.logger.Warnf("Canceling upload %s, a new model file was selected", u.session.ID())
		u.cancel()
	}
	u.cancel = nil

	u.session.SelectModelFile(file)
	u.logger.Infof("Selected model file: %s (%s), upload id: %s", file.Name(), humanSize(file.Size()), u.session.ID())

	u.commit()
}

// SelectWeatherFile ...
func (u *Uploader) SelectWeatherFile(file transfer.File) {
	if file == nil {
		u.logger.Warnf("No weather file selected")
		return
	}

	u.mu.Lock()

	u.session.SelectWeatherFile(file)
	u.logger.Infof("Selected weather file: %s (%s)", file.Name(), humanSize(file.Size()))

	u.commit()
}

// StartUpload starts uploading the selected model file in the background. When no upload can be
// started it returns false and a notice explaining why.
func (u *Uploader) StartUpload(ctx context.Context) (bool, string) {
	u.mu.Lock()

	accepted, notice := u.session.RequestTransfer()
	if !accepted {
		u.logger.Warnf("Upload not started: %s", notice)
		u.commit()
		return false, notice
	}

	sessionID := u.session.ID()
	file := u.session.ModelFile()
	attemptCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.begin()

	u.logger.Infof("Uploading %s to %s", file.Name(), u.session.StorageKey())
	u.commit()

	go u.run(attemptCtx, cancel, sessionID, file)

	return true, ""
}

// Cancel aborts the upload in flight. The session moves to canceled once the transfer stops.
func (u *Uploader) Cancel() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.session.State() != StateUploading || u.cancel == nil {
		return
	}
	u.logger.Warnf("Canceling upload %s", u.session.ID())
	u.cancel()
}

// RetryRegistration registers a completed upload whose registration failed, without
// uploading it again. If the object turns out to be missing from storage the session fails
// so the upload can be started again.
func (u *Uploader) RetryRegistration(ctx context.Context) error {
	u.mu.Lock()

	objectName, sessionID, err := u.session.BeginRegistration()
	if err != nil {
		u.mu.Unlock()
		return err
	}
	key := u.session.StorageKey()
	u.begin()
	u.commit()

	defer u.end()

	if u.checker != nil {
		exists, err := u.checker.ObjectExists(ctx, key)
		if err != nil {
			err = fmt.Errorf("check %s: %w", key, err)
			u.mu.Lock()
			u.session.ApplyRegistration(sessionID, err)
			u.commit()
			return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
		}
		if !exists {
			u.logger.Errorf("Uploaded object %s not found, the model has to be uploaded again", key)
			u.mu.Lock()
			u.session.ObjectMissing(sessionID)
			u.commit()
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
	}

	return u.register(ctx, sessionID, objectName)
}

// Status returns a snapshot of the session.
func (u *Uploader) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.session.Status()
}

// Wait blocks until no upload or registration is in flight.
func (u *Uploader) Wait(ctx context.Context) error {
	for {
		u.mu.Lock()
		if u.inflight == 0 {
			u.mu.Unlock()
			return nil
		}
		idle := u.idle
		u.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (u *Uploader) run(ctx context.Context, cancel context.CancelFunc, sessionID string, file transfer.File) {
	defer u.end()
	defer cancel()

	key := transfer.StorageKey(sessionID, file.Name())
	bundle, err := u.credentials.Credential(ctx, key)
	if err != nil {
		if ctx.Err() != nil {
			u.apply(transfer.CanceledEvent(sessionID, ctx.Err()))
		} else {
			u.apply(transfer.FailureEvent(sessionID, fmt.Errorf("get upload credential: %w", err)))
		}
		return
	}

	completed := false
	for event := range u.executor.Execute(ctx, transfer.Request{
		SessionID:  sessionID,
		File:       file,
		Credential: bundle,
	}) {
		if u.apply(event) && event.Kind == transfer.EventSuccess {
			completed = true
		}
	}

	if completed {
		// the error is surfaced through the session
		_ = u.register(ctx, sessionID, file.Name())
	}
}

// apply feeds an event into the session and reports whether it was accepted.
func (u *Uploader) apply(event transfer.Event) bool {
	u.mu.Lock()

	if !u.session.Apply(event) {
		u.mu.Unlock()
		if event.Kind.Terminal() {
			u.logger.Debugf("Ignoring %s event of upload %s", event.Kind, event.SessionID)
		}
		return false
	}

	switch event.Kind {
	case transfer.EventProgress:
		u.logger.Debugf("Upload progress: %d%%", u.session.Status().Progress)
	case transfer.EventSuccess:
		u.cancel = nil
		u.logger.Donef("Uploaded %s", u.session.StorageKey())
	case transfer.EventFailure:
		u.cancel = nil
		u.logger.Errorf("Upload failed: %s", event.Err)
	case transfer.EventCanceled:
		u.cancel = nil
		u.logger.Warnf("Upload canceled")
	}

	u.commit()
	return true
}

func (u *Uploader) register(ctx context.Context, sessionID, objectName string) error {
	u.logger.Infof("Registering %s as a job (upload id: %s)", objectName, sessionID)

	ack, err := u.registrar.Register(ctx, objectName, sessionID)

	u.mu.Lock()
	current := u.session.ApplyRegistration(sessionID, err)
	switch {
	case err != nil:
		u.logger.Errorf("Job registration failed, the model is uploaded but no job was created: %s", err)
	case len(ack.Result) > 0:
		u.logger.Donef("Job registered: %s", string(ack.Result))
	default:
		u.logger.Donef("Job registered")
	}
	if !current {
		u.logger.Debugf("Session %s was replaced during registration", sessionID)
	}
	u.commit()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	return nil
}

// commit publishes the session state to the observers. It must be called with u.mu held and
// releases it; the notify lock is taken first so observers see changes in order.
func (u *Uploader) commit() {
	status := u.session.Status()
	u.notifyMu.Lock()
	u.mu.Unlock()

	defer u.notifyMu.Unlock()
	for _, observer := range u.observers {
		observer(status)
	}
}

// begin must be called with u.mu held.
func (u *Uploader) begin() {
	if u.inflight == 0 {
		u.idle = make(chan struct{})
	}
	u.inflight++
}

func (u *Uploader) end() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.inflight--
	if u.inflight == 0 {
		close(u.idle)
	}
}

func humanSize(size int64) string {
	if size < 0 {
		return "unknown size"
	}
	return units.HumanSize(float64(size))
}
