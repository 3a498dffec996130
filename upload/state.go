package upload

import "fmt"

// State is the transfer state of an upload session.
type State int

// Session states.
const (
	StateIdle State = iota
	StateSelected
	StateUploading
	StateCompleted
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelected:
		return "selected"
	case StateUploading:
		return "uploading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the state is the outcome of a transfer attempt.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// RegistrationState tracks the job registration of a completed upload.
type RegistrationState int

// Registration states. Anything other than RegistrationNone implies StateCompleted.
const (
	RegistrationNone RegistrationState = iota
	RegistrationPending
	RegistrationRegistered
	RegistrationFailed
)

func (s RegistrationState) String() string {
	switch s {
	case RegistrationNone:
		return "none"
	case RegistrationPending:
		return "pending"
	case RegistrationRegistered:
		return "registered"
	case RegistrationFailed:
		return "failed"
	default:
		return fmt.Sprintf("RegistrationState(%d)", int(s))
	}
}
