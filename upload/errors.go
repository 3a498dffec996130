package upload

import "errors"

var (
	// ErrNoFileSelected is the guard raised when an upload is requested before a model file
	// is chosen. It is informational and only surfaces as a notice.
	ErrNoFileSelected = errors.New("no file chosen")
	// ErrTransferFailed wraps network and storage service errors of an upload attempt.
	// Starting the upload again retries it under the same storage key.
	ErrTransferFailed = errors.New("upload failed")
	// ErrTransferCanceled marks an aborted upload attempt. It is retried like a failure.
	ErrTransferCanceled = errors.New("upload canceled")
	// ErrRegistrationFailed means the object is in storage but no job was recorded for it.
	// The upload must not be repeated, only the registration.
	ErrRegistrationFailed = errors.New("job registration failed")
	// ErrNotRegistrable is returned when a registration retry is requested for a session
	// without a failed registration.
	ErrNotRegistrable = errors.New("nothing to register")
	// ErrObjectNotFound is returned when a registration retry finds the uploaded object missing.
	ErrObjectNotFound = errors.New("uploaded object not found")
)

const (
	noticeInProgress = "upload already in progress"
	noticeCompleted  = "upload already completed"
)

// Severity ranks surfaced errors.
type Severity int

// Severities in increasing order.
const (
	SeverityNone Severity = iota
	// SeverityInfo needs user input but nothing went wrong.
	SeverityInfo
	// SeverityRecoverable is fixed by starting the upload again.
	SeverityRecoverable
	// SeverityInconsistent leaves storage and the job registry out of sync.
	SeverityInconsistent
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityInfo:
		return "info"
	case SeverityRecoverable:
		return "recoverable"
	case SeverityInconsistent:
		return "inconsistent"
	default:
		return "unknown"
	}
}

// SeverityOf classifies an error returned or surfaced by this package.
func SeverityOf(err error) Severity {
	switch {
	case err == nil:
		return SeverityNone
	case errors.Is(err, ErrRegistrationFailed):
		return SeverityInconsistent
	case errors.Is(err, ErrNoFileSelected):
		return SeverityInfo
	default:
		return SeverityRecoverable
	}
}
