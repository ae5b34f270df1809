// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

const (
	ER_ACCESS_DENIED_ERROR = 1045
	ER_DUP_ENTRY           = 1062
)

var (
	// ErrDefaultRefProtected rejects deletion of the default branch.
	ErrDefaultRefProtected = errors.New("default ref cannot be deleted")
)

type ErrNotFound struct {
	Kind string
	ID   string
}

func (err *ErrNotFound) Error() string {
	return fmt.Sprintf("%s '%s' not found", err.Kind, err.ID)
}

func NewErrNotFound(kind string, format string, a ...any) error {
	return &ErrNotFound{Kind: kind, ID: fmt.Sprintf(format, a...)}
}

func IsErrorCode(err error, code uint16) bool {
	var merr *mysql.MySQLError
	if errors.As(err, &merr) {
		return merr.Number == code
	}
	return false
}

func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(*ErrNotFound); ok {
		return true
	}
	return errors.Is(err, sql.ErrNoRows)
}

func IsDupEntry(err error) bool {
	return IsErrorCode(err, ER_DUP_ENTRY)
}

// ErrAlreadyLocked is the compare-and-swap loss: the ref moved under the
// caller. Retryable after re-resolving the ref.
type ErrAlreadyLocked struct {
	Reference string
}

func (e *ErrAlreadyLocked) Error() string {
	return fmt.Sprintf("reference is already locked: %q", e.Reference)
}

func IsErrAlreadyLocked(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrAlreadyLocked)
	return ok
}

type ErrNamingRule struct {
	name string
}

func (e *ErrNamingRule) Error() string {
	return fmt.Sprintf("'%s' does not comply with the naming rules", e.name)
}

func IsErrNamingRule(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrNamingRule)
	return ok
}

type ErrExist struct {
	message string
}

func (e *ErrExist) Error() string {
	return e.message
}

func NewErrExist(format string, a ...any) error {
	return &ErrExist{message: fmt.Sprintf(format, a...)}
}

func IsErrExist(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrExist)
	return ok
}

// ErrJobTransition rejects job state transitions outside
// pending→running→{completed,failed}.
type ErrJobTransition struct {
	JobID string
	To    JobStatus
}

func (e *ErrJobTransition) Error() string {
	return fmt.Sprintf("job '%s' cannot transition to '%s'", e.JobID, e.To)
}

func IsErrJobTransition(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrJobTransition)
	return ok
}
