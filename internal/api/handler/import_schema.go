package handler

import "github.com/openlms/provisioner/internal/core/domain"

// rowPayload is the wire shape of one canonical roster row, used in both
// directions: submitted with start/download and echoed in preview, row_update
// events, and results.
type rowPayload struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	Password  string  `json:"password,omitempty"`
	CourseIDs []int64 `json:"course_ids"`

	Status        string `json:"status"`
	EnrolStatus   string `json:"enrol_status"`
	SuspendStatus string `json:"suspend_status"`

	ExistingFirstName string `json:"existing_first_name"`
	ExistingLastName  string `json:"existing_last_name"`
	ExistingUsername  string `json:"existing_username"`
	ExistingEmail     string `json:"existing_email"`
	ExistingID        int64  `json:"existing_id,omitempty"`
}

type rowsRequest struct {
	Rows []rowPayload `json:"rows" validate:"required,min=1"`
}

type startedResponse struct {
	JobID string `json:"job_id"`
}

type previewResponse struct {
	Rows  []rowPayload `json:"rows"`
	Count int          `json:"count"`
}

type resultResponse struct {
	Rows []rowPayload `json:"rows"`
	Done bool         `json:"done"`
}

type helloPayload struct {
	JobID string `json:"job_id"`
}

type pingResponse struct {
	OK       bool   `json:"ok"`
	SiteName string `json:"site_name,omitempty"`
	Release  string `json:"release,omitempty"`
	RoleID   int    `json:"role_id"`
}

func toRecord(r rowPayload) domain.Record {
	return domain.Record{
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Email:             r.Email,
		Username:          r.Username,
		Password:          r.Password,
		CourseIDs:         r.CourseIDs,
		Status:            r.Status,
		EnrolStatus:       r.EnrolStatus,
		SuspendStatus:     r.SuspendStatus,
		ExistingFirstName: r.ExistingFirstName,
		ExistingLastName:  r.ExistingLastName,
		ExistingUsername:  r.ExistingUsername,
		ExistingEmail:     r.ExistingEmail,
		ExistingID:        r.ExistingID,
	}
}

func fromRecord(r domain.Record) rowPayload {
	return rowPayload{
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Email:             r.Email,
		Username:          r.Username,
		Password:          r.Password,
		CourseIDs:         r.CourseIDs,
		Status:            r.Status,
		EnrolStatus:       r.EnrolStatus,
		SuspendStatus:     r.SuspendStatus,
		ExistingFirstName: r.ExistingFirstName,
		ExistingLastName:  r.ExistingLastName,
		ExistingUsername:  r.ExistingUsername,
		ExistingEmail:     r.ExistingEmail,
		ExistingID:        r.ExistingID,
	}
}

func toRecords(rows []rowPayload) []domain.Record {
	out := make([]domain.Record, len(rows))
	for i, r := range rows {
		out[i] = toRecord(r)
	}
	return out
}

func fromRecords(records []domain.Record) []rowPayload {
	out := make([]rowPayload, len(records))
	for i, r := range records {
		out[i] = fromRecord(r)
	}
	return out
}
