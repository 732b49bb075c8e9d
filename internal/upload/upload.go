// Package upload copies the day's log files to cloud storage, retrying
// transient failures, and prunes old local files once the copy succeeds.
package upload

import (
	"context"
	"errors"
	"io"
)

// Storage writes a file to a remote path.
type Storage interface {
	Put(ctx context.Context, remotePath string, content io.Reader) error
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// IsPermanent reports whether err was marked by Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
