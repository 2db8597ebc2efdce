package domain

import (
	"regexp"
	"strings"
)

const maxUsernameLen = 100

var (
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRe = regexp.MustCompile(`^[a-z0-9._-]+$`)
)

// Record is one roster row after normalisation: deterministic fields ready for
// remote submission, plus the outcome fields filled in by the row processor.
type Record struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	Password  string  `json:"password,omitempty"` // set only on fresh local-password creation
	CourseIDs []int64 `json:"course_ids"`

	Status        string `json:"status"`
	EnrolStatus   string `json:"enrol_status"`
	SuspendStatus string `json:"suspend_status"`

	ExistingFirstName string `json:"existing_first_name"`
	ExistingLastName  string `json:"existing_last_name"`
	ExistingUsername  string `json:"existing_username"`
	ExistingEmail     string `json:"existing_email"`
	ExistingID        int64  `json:"existing_id,omitempty"`

	// RenameNote carries the reconciliation audit note until the create step
	// folds it into Status.
	RenameNote string `json:"rename_note,omitempty"`
}

// Validate checks the fields required before any remote interaction.
// It returns the row-local failure message, or "" when the record is valid.
func (r *Record) Validate() string {
	un := strings.ToLower(strings.TrimSpace(r.Username))
	fn := strings.TrimSpace(r.FirstName)
	ln := strings.TrimSpace(r.LastName)
	em := strings.ToLower(strings.TrimSpace(r.Email))

	switch {
	case un == "" || fn == "" || ln == "" || em == "":
		return "Missing required field(s)"
	case !emailRe.MatchString(em):
		return "Invalid email format"
	case len(un) > maxUsernameLen:
		return "Username too long (>100)"
	case !usernameRe.MatchString(un):
		return "Username has disallowed characters"
	}
	return ""
}
