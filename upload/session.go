package upload

import (
	"fmt"

	"github.com/alfalfa-io/model-uploader/transfer"
	"github.com/google/uuid"
)

const (
	modelFileHint   = "Select Simulation File"
	weatherFileHint = "Select Weather File"
)

// Status is a snapshot of a session, everything a front-end needs to render it.
type Status struct {
	SessionID  string
	StorageKey string
	State      State
	// Progress is the completed percentage of the current or last upload attempt.
	Progress int
	// Indeterminate is set while uploading a file of unknown size.
	Indeterminate bool
	Registration  RegistrationState
	ModelHint     string
	WeatherHint   string
	// Err is the last surfaced error, see SeverityOf.
	Err error
	// Notice is the last informational guard message.
	Notice string
}

// Session is the state machine of a single model upload. It is not safe for concurrent use,
// Uploader serializes access to it.
type Session struct {
	newID func() string

	id            string
	modelFile     transfer.File
	weatherFile   transfer.File
	state         State
	progress      int
	indeterminate bool
	registration  RegistrationState
	err           error
	notice        string
}

// NewSession returns an idle session. newID generates the session ids, nil selects
// time based UUIDs.
func NewSession(newID func() string) *Session {
	if newID == nil {
		newID = newSessionID
	}
	return &Session{
		newID: newID,
		state: StateIdle,
	}
}

func newSessionID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ID ...
func (s *Session) ID() string {
	return s.id
}

// State ...
func (s *Session) State() State {
	return s.state
}

// ModelFile ...
func (s *Session) ModelFile() transfer.File {
	return s.modelFile
}

// StorageKey returns the object key of the selected model file, or an empty string.
func (s *Session) StorageKey() string {
	if s.modelFile == nil {
		return ""
	}
	return transfer.StorageKey(s.id, s.modelFile.Name())
}

// SelectModelFile replaces the model file. Every selection starts a new session with a
// fresh id, whatever state the previous one was in. A nil file is a dismissed selection: it
// changes nothing and false is returned.
func (s *Session) SelectModelFile(file transfer.File) bool {
	if file == nil {
		return false
	}

	s.modelFile = file
	s.id = s.newID()
	s.state = StateSelected
	s.progress = 0
	s.indeterminate = false
	s.registration = RegistrationNone
	s.err = nil
	s.notice = ""
	return true
}

// SelectWeatherFile only updates the weather slot. A nil file is ignored.
func (s *Session) SelectWeatherFile(file transfer.File) bool {
	if file == nil {
		return false
	}
	s.weatherFile = file
	return true
}

// RequestTransfer moves the session to uploading. When the session is not in a state an upload
// can start from it returns false with a notice, and nothing changes apart from the notice.
func (s *Session) RequestTransfer() (bool, string) {
	switch {
	case s.state == StateIdle, s.modelFile == nil:
		s.notice = ErrNoFileSelected.Error()
		return false, s.notice
	case s.state == StateUploading:
		s.notice = noticeInProgress
		return false, s.notice
	case s.state == StateCompleted:
		s.notice = noticeCompleted
		return false, s.notice
	}

	// Selected, or a retry of a failed or canceled attempt under the same id
	s.state = StateUploading
	s.progress = 0
	s.indeterminate = s.modelFile.Size() <= 0
	s.registration = RegistrationNone
	s.err = nil
	s.notice = ""
	return true, ""
}

// Apply feeds a transfer event into the state machine and reports whether it changed anything.
// Events of superseded sessions and events arriving outside of an upload are ignored.
func (s *Session) Apply(event transfer.Event) bool {
	if event.SessionID != s.id || s.state != StateUploading {
		return false
	}

	switch event.Kind {
	case transfer.EventProgress:
		percent := clamp(event.Percent)
		if percent <= s.progress && !s.indeterminate {
			return false
		}
		if percent > s.progress {
			s.progress = percent
		}
		s.indeterminate = false
	case transfer.EventSuccess:
		s.state = StateCompleted
		s.progress = 100
		s.indeterminate = false
		s.registration = RegistrationPending
	case transfer.EventFailure:
		s.state = StateFailed
		s.indeterminate = false
		s.err = wrap(ErrTransferFailed, event.Err)
	case transfer.EventCanceled:
		s.state = StateCanceled
		s.indeterminate = false
		s.err = wrap(ErrTransferCanceled, event.Err)
	default:
		return false
	}
	return true
}

// BeginRegistration prepares a retry of a failed registration and returns what to register.
func (s *Session) BeginRegistration() (objectName string, sessionID string, err error) {
	if s.state != StateCompleted {
		return "", "", fmt.Errorf("%w: session is %s", ErrNotRegistrable, s.state)
	}
	if s.registration != RegistrationFailed {
		return "", "", fmt.Errorf("%w: registration is %s", ErrNotRegistrable, s.registration)
	}

	s.registration = RegistrationPending
	s.err = nil
	return s.modelFile.Name(), s.id, nil
}

// ApplyRegistration records the outcome of a registration call and reports whether it
// belonged to the current session.
func (s *Session) ApplyRegistration(sessionID string, err error) bool {
	if sessionID != s.id || s.state != StateCompleted || s.registration != RegistrationPending {
		return false
	}

	if err != nil {
		s.registration = RegistrationFailed
		s.err = wrap(ErrRegistrationFailed, err)
		return true
	}
	s.registration = RegistrationRegistered
	s.err = nil
	return true
}

// ObjectMissing turns a completed session whose object disappeared from storage into a failed
// one, so the upload can be started again.
func (s *Session) ObjectMissing(sessionID string) bool {
	if sessionID != s.id || s.state != StateCompleted {
		return false
	}

	s.state = StateFailed
	s.registration = RegistrationNone
	s.err = wrap(ErrTransferFailed, fmt.Errorf("%w: %s", ErrObjectNotFound, s.StorageKey()))
	return true
}

// Status ...
func (s *Session) Status() Status {
	status := Status{
		SessionID:     s.id,
		StorageKey:    s.StorageKey(),
		State:         s.state,
		Progress:      s.progress,
		Indeterminate: s.indeterminate,
		Registration:  s.registration,
		ModelHint:     modelFileHint,
		WeatherHint:   weatherFileHint,
		Err:           s.err,
		Notice:        s.notice,
	}
	if s.modelFile != nil {
		status.ModelHint = s.modelFile.Name()
	}
	if s.weatherFile != nil {
		status.WeatherHint = s.weatherFile.Name()
	}
	return status
}

func clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

func wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
