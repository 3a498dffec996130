// Package transfer moves a file into the storage bucket with a pre-signed POST form and reports
// the outcome as a small closed set of events.
package transfer

import (
	"context"
	"fmt"
	"io"

	"github.com/alfalfa-io/model-uploader/credential"
)

// File is a named byte source that can be opened for reading.
type File interface {
	Name() string
	// Size returns the content length in bytes, or a negative value when it is unknown.
	Size() int64
	Open() (io.ReadCloser, error)
}

// ContentTyper is implemented by files that know their media type.
type ContentTyper interface {
	ContentType() string
}

// EventKind ...
type EventKind int

// Transfer events. Progress may repeat; exactly one of the others ends a transfer.
const (
	EventProgress EventKind = iota
	EventSuccess
	EventFailure
	EventCanceled
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	case EventCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Terminal reports whether the kind ends a transfer.
func (k EventKind) Terminal() bool {
	return k != EventProgress
}

// Event is emitted by an Executor while a transfer runs.
type Event struct {
	// SessionID correlates the event with the upload session that requested the transfer.
	SessionID string
	Kind      EventKind
	// Percent is set for EventProgress.
	Percent int
	// Response is the storage service's response body for EventSuccess.
	Response []byte
	// Err is the cause for EventFailure and EventCanceled.
	Err error
}

// Request describes a single transfer.
type Request struct {
	SessionID  string
	File       File
	Credential credential.Bundle
}

// Executor performs transfers. The returned channel delivers progress events followed by
// exactly one terminal event, and is closed afterwards.
type Executor interface {
	Execute(ctx context.Context, req Request) <-chan Event
}

// StorageKey returns the object key a session's file is stored under.
func StorageKey(sessionID, fileName string) string {
	return fmt.Sprintf("uploads/%s/%s", sessionID, fileName)
}

// ProgressEvent ...
func ProgressEvent(sessionID string, percent int) Event {
	return Event{SessionID: sessionID, Kind: EventProgress, Percent: percent}
}

// SuccessEvent ...
func SuccessEvent(sessionID string, response []byte) Event {
	return Event{SessionID: sessionID, Kind: EventSuccess, Response: response}
}

// FailureEvent ...
func FailureEvent(sessionID string, cause error) Event {
	return Event{SessionID: sessionID, Kind: EventFailure, Err: cause}
}

// CanceledEvent ...
func CanceledEvent(sessionID string, cause error) Event {
	return Event{SessionID: sessionID, Kind: EventCanceled, Err: cause}
}
