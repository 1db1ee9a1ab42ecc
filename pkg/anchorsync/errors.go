package anchorsync

import (
	"errors"
	"fmt"
)

var (
	ErrSessionAlreadyExists     = errors.New("session already exists")
	ErrSessionStart             = errors.New("session start failed")
	ErrReadinessTimeout         = errors.New("timed out waiting for environment readiness")
	ErrNoTargetObject           = errors.New("no local object to save")
	ErrSaveFailed               = errors.New("anchor save failed")
	ErrInvalidArgument          = errors.New("invalid argument")
	ErrNoActiveSession          = errors.New("no active session")
	ErrMissingBindingCapability = errors.New("object cannot hold a cloud anchor binding")

	ErrInvalidTransition  = errors.New("invalid session state transition")
	ErrAlreadyBound       = errors.New("object is already bound to a cloud anchor")
	ErrNoAnchorReturned   = errors.New("failed to save, but no error was returned")
	ErrFlowInProgress     = errors.New("another save or locate flow is in progress")
	ErrOffContextMutation = errors.New("spatial object mutated outside the owning context")
	ErrDispatcherClosed   = errors.New("dispatcher closed")
	ErrReentrantCall      = errors.New("dispatcher call issued from the owning context")
	ErrNoBoundAnchor      = errors.New("no bound cloud anchor")
	ErrRemoteService      = errors.New("remote anchoring service error")
)

// RemoteError is the diagnostic payload a remote anchoring service attaches to a failure.
type RemoteError struct {
	Message string
	Inner   error
	Type    string
}

func (e *RemoteError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Inner }

func (e *RemoteError) Is(target error) bool { return target == ErrRemoteService }

// SessionStartError wraps a rejected start with the service's diagnostics.
type SessionStartError struct {
	Message  string
	Cause    error
	TypeName string
}

func newSessionStartError(cause error) *SessionStartError {
	e := &SessionStartError{
		Message:  cause.Error(),
		Cause:    cause,
		TypeName: fmt.Sprintf("%T", cause),
	}
	var remote *RemoteError
	if errors.As(cause, &remote) {
		e.Message = remote.Message
		e.TypeName = remote.Type
	}
	return e
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("session start failed (%s): %s", e.TypeName, e.Message)
}

func (e *SessionStartError) Unwrap() error { return e.Cause }

func (e *SessionStartError) Is(target error) bool { return target == ErrSessionStart }

// ReadinessTimeoutError carries the last readiness fraction seen before giving up.
type ReadinessTimeoutError struct {
	LastFraction float64
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("%v (last progress %.0f%%)", ErrReadinessTimeout, e.LastFraction*100)
}

func (e *ReadinessTimeoutError) Is(target error) bool { return target == ErrReadinessTimeout }

// SaveFailedError is the terminal error of a save attempt whose submission failed.
type SaveFailedError struct {
	Cause error
}

func (e *SaveFailedError) Error() string {
	return fmt.Sprintf("%v: %v", ErrSaveFailed, e.Cause)
}

func (e *SaveFailedError) Unwrap() error { return e.Cause }

func (e *SaveFailedError) Is(target error) bool { return target == ErrSaveFailed }

// describeError renders the full cause chain: message, inner cause and type tag of each link.
func describeError(err error) string {
	if err == nil {
		return "<nil>"
	}
	out := ""
	for depth := 0; err != nil; depth++ {
		if depth > 0 {
			out += " <- "
		}
		out += fmt.Sprintf("[%T] %s", err, err.Error())
		err = errors.Unwrap(err)
	}
	return out
}
