package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrEmptyBatch  = errors.New("batch contains no rows")
	// ErrNotConfigured surfaces lazily, on the first remote call, when the
	// endpoint URL or token is missing from the environment.
	ErrNotConfigured = errors.New("remote endpoint not configured: LMS_URL and LMS_TOKEN are required")
)

// SchemaError reports that the required roster columns could not be located in
// an uploaded file. It names the columns that were actually found so the
// uploader can fix the header row.
type SchemaError struct {
	Found []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf(
		"missing required columns, expected at least 'First Name', 'Last Name', 'Email Address'; found: %s",
		strings.Join(e.Found, ", "),
	)
}
