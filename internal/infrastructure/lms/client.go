// Package lms implements the remote directory client against a
// Moodle-compatible REST web-service protocol: every call POSTs to a single
// endpoint carrying a function-name selector, and success or failure is
// determined by response shape rather than HTTP status.
package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/openlms/provisioner/internal/api/metrics"
	"github.com/openlms/provisioner/internal/core/domain"
	"github.com/openlms/provisioner/internal/core/ports"
)

// Web-service function selectors.
const (
	fnSiteInfo     = "core_webservice_get_site_info"
	fnCreateUsers  = "core_user_create_users"
	fnUsersByField = "core_user_get_users_by_field"
	fnUserCourses  = "core_enrol_get_users_courses"
	fnEnrolManual  = "enrol_manual_enrol_users"
	fnUpdateUsers  = "core_user_update_users"
)

const (
	dataTimeout  = 30 * time.Second
	probeTimeout = 15 * time.Second
)

// Client is a stateless request/response wrapper around the remote system's
// user operations. It satisfies ports.Directory.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	log      zerolog.Logger
}

// New returns a Client for the given endpoint and token. Either value may be
// empty: configuration is validated lazily, surfacing as a clear error on the
// first call instead of a startup crash.
func New(endpoint, token string, log zerolog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		// Per-call deadlines come from the request context; the client itself
		// carries no timeout so the two tiers (15s probe, 30s data) stay
		// distinct.
		http: &http.Client{},
		log:  log,
	}
}

var _ ports.Directory = (*Client)(nil)

// Probe checks connectivity and token validity via the lightweight site-info
// function.
func (c *Client) Probe(ctx context.Context) (*ports.SiteInfo, error) {
	raw, err := c.call(ctx, fnSiteInfo, nil, probeTimeout)
	if err != nil {
		return nil, err
	}

	var info struct {
		SiteName string `json:"sitename"`
		Username string `json:"username"`
		Release  string `json:"release"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, &ports.TransportError{Op: fnSiteInfo, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return &ports.SiteInfo{SiteName: info.SiteName, Username: info.Username, Release: info.Release}, nil
}

// UsersByField looks up users in bulk by one field name and a list of values.
func (c *Client) UsersByField(ctx context.Context, field string, values []string) ([]ports.RemoteUser, error) {
	form := url.Values{}
	form.Set("field", field)
	for i, v := range values {
		form.Set(fmt.Sprintf("values[%d]", i), v)
	}

	raw, err := c.call(ctx, fnUsersByField, form, dataTimeout)
	if err != nil {
		return nil, err
	}

	var users []remoteUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, &ports.TransportError{Op: fnUsersByField, Err: fmt.Errorf("malformed response: %w", err)}
	}

	out := make([]ports.RemoteUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.toPort())
	}
	return out, nil
}

// UserCourses returns the course memberships for one user id.
func (c *Client) UserCourses(ctx context.Context, userID int64) ([]ports.RemoteCourse, error) {
	form := url.Values{}
	form.Set("userid", strconv.FormatInt(userID, 10))

	raw, err := c.call(ctx, fnUserCourses, form, dataTimeout)
	if err != nil {
		return nil, err
	}

	var courses []struct {
		ID       int64  `json:"id"`
		FullName string `json:"fullname"`
	}
	if err := json.Unmarshal(raw, &courses); err != nil {
		return nil, &ports.TransportError{Op: fnUserCourses, Err: fmt.Errorf("malformed response: %w", err)}
	}

	out := make([]ports.RemoteCourse, 0, len(courses))
	for _, co := range courses {
		out = append(out, ports.RemoteCourse{ID: co.ID, FullName: co.FullName})
	}
	return out, nil
}

// CreateUser creates one account and returns its new id.
func (c *Client) CreateUser(ctx context.Context, p ports.CreateUserParams) (int64, error) {
	form := url.Values{}
	form.Set("users[0][username]", p.Username)
	form.Set("users[0][firstname]", p.FirstName)
	form.Set("users[0][lastname]", p.LastName)
	form.Set("users[0][email]", p.Email)
	if p.GeneratePassword {
		form.Set("users[0][createpassword]", "1")
	} else {
		form.Set("users[0][password]", p.Password)
	}
	if p.Auth != "" {
		form.Set("users[0][auth]", p.Auth)
	}

	raw, err := c.call(ctx, fnCreateUsers, form, dataTimeout)
	if err != nil {
		return 0, err
	}

	var created []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil || len(created) == 0 {
		return 0, &ports.TransportError{Op: fnCreateUsers, Err: fmt.Errorf("unexpected response: %s", truncate(raw, 200))}
	}
	return created[0].ID, nil
}

// UnsuspendUser clears the suspended flag on an existing account.
func (c *Client) UnsuspendUser(ctx context.Context, userID int64) error {
	form := url.Values{}
	form.Set("users[0][id]", strconv.FormatInt(userID, 10))
	form.Set("users[0][suspended]", "0")

	_, err := c.call(ctx, fnUpdateUsers, form, dataTimeout)
	return err
}

// EnrolUser enrols a user into a course with the given role.
func (c *Client) EnrolUser(ctx context.Context, userID, courseID int64, roleID int) error {
	form := url.Values{}
	form.Set("enrolments[0][roleid]", strconv.Itoa(roleID))
	form.Set("enrolments[0][userid]", strconv.FormatInt(userID, 10))
	form.Set("enrolments[0][courseid]", strconv.FormatInt(courseID, 10))

	_, err := c.call(ctx, fnEnrolManual, form, dataTimeout)
	return err
}

// call issues one web-service request and classifies the response into
// exactly one of: raw success payload, *ports.AppError (the remote system
// understood and rejected the request), or *ports.TransportError.
func (c *Client) call(ctx context.Context, function string, form url.Values, timeout time.Duration) (json.RawMessage, error) {
	if c.endpoint == "" || c.token == "" {
		return nil, domain.ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timer := prometheus.NewTimer(metrics.RemoteCallDuration.WithLabelValues(function))
	defer timer.ObserveDuration()

	query := url.Values{}
	query.Set("wstoken", c.token)
	query.Set("wsfunction", function)
	query.Set("moodlewsrestformat", "json")

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?"+query.Encode(), body)
	if err != nil {
		return nil, &ports.TransportError{Op: function, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ports.TransportError{Op: function, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ports.TransportError{Op: function, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ports.TransportError{Op: function, Err: err}
	}

	if appErr := classifyException(raw); appErr != nil {
		c.log.Debug().Str("function", function).Str("code", appErr.Code).Msg("remote application error")
		return nil, appErr
	}
	return raw, nil
}

// classifyException detects the protocol's application-failure shape: a JSON
// object containing an "exception" marker. List responses are never failures.
func classifyException(raw json.RawMessage) *ports.AppError {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}

	var exc struct {
		Exception string `json:"exception"`
		ErrorCode string `json:"errorcode"`
		Message   string `json:"message"`
		DebugInfo string `json:"debuginfo"`
	}
	if err := json.Unmarshal(raw, &exc); err != nil || exc.Exception == "" {
		return nil
	}
	return &ports.AppError{Code: exc.ErrorCode, Message: exc.Message, Debug: exc.DebugInfo}
}

// remoteUser tolerates the protocol's loose typing on the suspended flag.
type remoteUser struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	FirstName string          `json:"firstname"`
	LastName  string          `json:"lastname"`
	Suspended json.RawMessage `json:"suspended"`
}

func (u remoteUser) toPort() ports.RemoteUser {
	return ports.RemoteUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Suspended: truthy(u.Suspended),
	}
}

func truthy(raw json.RawMessage) bool {
	switch strings.Trim(strings.TrimSpace(string(raw)), `"`) {
	case "1", "true", "True":
		return true
	default:
		return false
	}
}

func truncate(raw []byte, n int) string {
	s := string(raw)
	if len(s) > n {
		return s[:n]
	}
	return s
}
