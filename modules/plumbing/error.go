package plumbing

import (
	"errors"
	"fmt"
)

var (
	// ErrStop is used to stop a ForEach function in an Iter
	ErrStop = errors.New("stop iter")
)

// noSuchCommit is an error type that occurs when no commit with a given id is
// available.
type noSuchCommit struct {
	oid string
}

// Error implements the error.Error() function.
func (e *noSuchCommit) Error() string {
	return fmt.Sprintf("tabula: no such commit: %s", e.oid)
}

// NoSuchCommit creates a new error representing a missing commit with a given
// commit id.
func NoSuchCommit(oid string) error {
	return &noSuchCommit{oid: oid}
}

// IsNoSuchCommit indicates whether an error is a noSuchCommit and is non-nil.
func IsNoSuchCommit(e error) bool {
	if e == nil {
		return false
	}
	err, ok := e.(*noSuchCommit)
	return ok && err != nil
}

type ErrBadRowID struct {
	ID string
}

func (err *ErrBadRowID) Error() string {
	return fmt.Sprintf("bad logical row id: '%s'", err.ID)
}

func IsErrBadRowID(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrBadRowID)
	return ok
}

type ErrBadReferenceName struct {
	Name string
}

func (err *ErrBadReferenceName) Error() string {
	return fmt.Sprintf("bad reference name: '%s'", err.Name)
}

func IsErrBadReferenceName(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrBadReferenceName)
	return ok
}

type ErrBadTableKey struct {
	Key string
}

func (err *ErrBadTableKey) Error() string {
	return fmt.Sprintf("bad table key: '%s'", err.Key)
}

func IsErrBadTableKey(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrBadTableKey)
	return ok
}
