package ports

import (
	"context"
	"fmt"
)

// RemoteUser is the remote system's view of an account, fetched read-only.
type RemoteUser struct {
	ID        int64
	Username  string
	Email     string
	FirstName string
	LastName  string
	Suspended bool
}

// RemoteCourse is one course membership returned by the directory.
type RemoteCourse struct {
	ID       int64
	FullName string
}

// SiteInfo is the payload of the lightweight connectivity probe.
type SiteInfo struct {
	SiteName string
	Username string
	Release  string
}

// CreateUserParams captures one creation attempt. Exactly one of Password or
// GeneratePassword is set, per the four fallback variants; Auth is "manual" or
// empty (remote default).
type CreateUserParams struct {
	Username         string
	FirstName        string
	LastName         string
	Email            string
	Password         string
	GeneratePassword bool
	Auth             string
}

// AppError is an application-level rejection from the remote system: the call
// was understood but refused. Code, message, and debug detail carry through
// verbatim into row status fields.
type AppError struct {
	Code    string
	Message string
	Debug   string
}

func (e *AppError) Error() string {
	code := e.Code
	if code == "" {
		code = "exception"
	}
	if e.Debug != "" {
		return fmt.Sprintf("%s: %s (%s)", code, e.Message, e.Debug)
	}
	return fmt.Sprintf("%s: %s", code, e.Message)
}

// TransportError is a network-level failure: timeout, connection error, or a
// non-2xx response. It is always contained to the affected row, never
// propagated to abort a batch.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Directory is the stateless wrapper around the remote system's user
// operations. Every method classifies the response into exactly one of:
// success, *AppError, or *TransportError.
type Directory interface {
	// Probe checks connectivity and token validity.
	Probe(ctx context.Context) (*SiteInfo, error)
	// UsersByField looks up users in bulk by one field ("email", "username").
	UsersByField(ctx context.Context, field string, values []string) ([]RemoteUser, error)
	// UserCourses returns the course memberships for one user id.
	UserCourses(ctx context.Context, userID int64) ([]RemoteCourse, error)
	// CreateUser creates one account and returns its new id.
	CreateUser(ctx context.Context, p CreateUserParams) (int64, error)
	// UnsuspendUser clears the suspended flag on an existing account.
	UnsuspendUser(ctx context.Context, userID int64) error
	// EnrolUser enrols a user into a course with the given role.
	EnrolUser(ctx context.Context, userID, courseID int64, roleID int) error
}
