package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteCallFailed matches any RemoteCallError via errors.Is.
	ErrRemoteCallFailed = errors.New("remote call failed")

	// ErrWriteConflict indicates the list item changed since its fields were read,
	// so the conditional write-back was rejected.
	ErrWriteConflict = errors.New("write conflict")

	// ErrAuthFailed indicates the tenant is invalid or its credentials were rejected.
	ErrAuthFailed = errors.New("authentication failed")
)

const maxBodyExcerpt = 2000

// RemoteCallError is returned when a remote operation ends with a non-2xx status
// after the retry policy has run its course.
type RemoteCallError struct {
	Operation   string
	Status      int
	BodyExcerpt string
}

func (e *RemoteCallError) Error() string {
	if e.BodyExcerpt == "" {
		return fmt.Sprintf("graph %s failed with status %d", e.Operation, e.Status)
	}
	return fmt.Sprintf("graph %s failed with status %d: %s", e.Operation, e.Status, e.BodyExcerpt)
}

func (e *RemoteCallError) Is(target error) bool {
	return target == ErrRemoteCallFailed
}
