package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openlms/provisioner/internal/api/metrics"
	"github.com/openlms/provisioner/internal/core/domain"
	"github.com/openlms/provisioner/internal/core/ports"
)

// enrolSeparator joins per-course enrolment outcomes into one status string.
const enrolSeparator = " | "

// RowProcessor drives one canonical record from validation through
// create-or-reconcile and enrolment to a terminal outcome. A row's failure is
// always contained to that row's status fields; nothing it does can abort the
// batch it belongs to.
type RowProcessor struct {
	dir    ports.Directory
	roleID int
	log    zerolog.Logger
}

func NewRowProcessor(dir ports.Directory, roleID int, log zerolog.Logger) *RowProcessor {
	return &RowProcessor{dir: dir, roleID: roleID, log: log}
}

// Process mutates rec in place until it is terminal. existing maps lowercase
// email to the prefetched remote account, avoiding one lookup round trip per
// row.
func (p *RowProcessor) Process(ctx context.Context, rec *domain.Record, existing map[string]ports.RemoteUser) {
	defer func() {
		if v := recover(); v != nil {
			rec.Status = fmt.Sprintf("Server error: %v", v)
			metrics.RowsProcessedTotal.WithLabelValues("server_error").Inc()
			p.log.Error().Interface("panic", v).Str("email", rec.Email).Msg("row processing panicked")
		}
		rec.RenameNote = ""
	}()

	state := domain.StatePending

	// Rows failing validation carry their reason in Status already and never
	// reach the remote system.
	if rec.Status != "" {
		p.advance(&state, domain.StateInvalid)
		p.advance(&state, domain.StateTerminal)
		metrics.RowsProcessedTotal.WithLabelValues("invalid").Inc()
		return
	}

	var userID int64

	if ex, ok := existing[strings.ToLower(rec.Email)]; ok {
		p.advance(&state, domain.StateExists)
		rec.ExistingFirstName = ex.FirstName
		rec.ExistingLastName = ex.LastName
		rec.ExistingUsername = ex.Username
		rec.ExistingEmail = ex.Email
		rec.ExistingID = ex.ID
		rec.Status = "already exist"
		rec.SuspendStatus = p.reconcileSuspension(ctx, ex)
		userID = ex.ID
		metrics.RowsProcessedTotal.WithLabelValues("exists").Inc()
	} else {
		p.advance(&state, domain.StateCreateAttempt)
		id, status, created := p.createWithVariants(ctx, rec)
		rec.Status = status
		if created {
			p.advance(&state, domain.StateCreated)
			rec.SuspendStatus = "Active"
			userID = id
		} else {
			p.advance(&state, domain.StateCreateFailed)
			p.advance(&state, domain.StateTerminal)
			metrics.RowsProcessedTotal.WithLabelValues("create_failed").Inc()
		}
	}

	rec.EnrolStatus = p.enrolAll(ctx, userID, rec.CourseIDs)

	if !state.Terminal() {
		p.advance(&state, domain.StateEnrolling)
		p.advance(&state, domain.StateTerminal)
		metrics.RowsProcessedTotal.WithLabelValues("processed").Inc()
	}
}

func (p *RowProcessor) advance(state *domain.RowState, next domain.RowState) {
	if !state.CanTransitionTo(next) {
		p.log.Warn().
			Str("from", string(*state)).
			Str("to", string(next)).
			Msg("unexpected row state transition")
	}
	*state = next
}

// createWithVariants tries the four creation parameter combinations in fixed
// order and stops at the first success:
//
//	1. remote-generated password, explicit manual auth
//	2. remote-generated password, remote default auth
//	3. local strong password, explicit manual auth
//	4. local strong password, remote default auth
//
// On success the returned status names the winning variant and folds in any
// username-reconciliation note. When all four fail, the status is the last
// variant's failure detail.
func (p *RowProcessor) createWithVariants(ctx context.Context, rec *domain.Record) (int64, string, bool) {
	var lastFailure string

	for variant := 1; variant <= 4; variant++ {
		params := ports.CreateUserParams{
			Username:  rec.Username,
			FirstName: rec.FirstName,
			LastName:  rec.LastName,
			Email:     rec.Email,
		}
		if variant <= 2 {
			params.GeneratePassword = true
		} else {
			pw := StrongPassword()
			rec.Password = pw
			params.Password = pw
		}
		if variant == 1 || variant == 3 {
			params.Auth = "manual"
		}

		id, err := p.dir.CreateUser(ctx, params)
		if err == nil {
			msg := fmt.Sprintf("Created (id=%d) via variant %d", id, variant)
			if variant <= 2 {
				msg += " (password emailed by LMS)"
			}
			if rec.RenameNote != "" {
				msg += " — " + rec.RenameNote
			}
			metrics.UsersCreatedTotal.WithLabelValues(strconv.Itoa(variant)).Inc()
			return id, msg, true
		}

		lastFailure = fmt.Sprintf("%s [variant %d]", err.Error(), variant)
		p.log.Debug().
			Str("username", rec.Username).
			Int("variant", variant).
			Str("detail", lastFailure).
			Msg("creation variant failed")
	}

	return 0, lastFailure, false
}

// reconcileSuspension clears the suspended flag on an existing account when
// set, reporting the outcome for the row's suspend-status field.
func (p *RowProcessor) reconcileSuspension(ctx context.Context, ex ports.RemoteUser) string {
	if !ex.Suspended {
		return "Active"
	}
	if err := p.dir.UnsuspendUser(ctx, ex.ID); err != nil {
		return "Unsuspend failed: " + err.Error()
	}
	return "Unsuspended"
}

// enrolAll enrols userID into every course id, joining per-course outcomes.
// Zero course ids is not a failure; a missing user id (creation failed) skips
// enrolment entirely.
func (p *RowProcessor) enrolAll(ctx context.Context, userID int64, courseIDs []int64) string {
	if len(courseIDs) == 0 {
		return "No course id provided"
	}
	if userID == 0 {
		return "No user id for enrolment"
	}

	msgs := make([]string, 0, len(courseIDs))
	for _, cid := range courseIDs {
		msgs = append(msgs, fmt.Sprintf("%d: %s", cid, p.enrolOne(ctx, userID, cid)))
	}
	return strings.Join(msgs, enrolSeparator)
}

// enrolOne is idempotent: an existing membership short-circuits without
// issuing an enrol request.
func (p *RowProcessor) enrolOne(ctx context.Context, userID, courseID int64) string {
	if p.isEnrolled(ctx, userID, courseID) {
		metrics.EnrolmentsTotal.WithLabelValues("already_enrolled").Inc()
		return "Already enrolled"
	}
	if err := p.dir.EnrolUser(ctx, userID, courseID, p.roleID); err != nil {
		metrics.EnrolmentsTotal.WithLabelValues("failed").Inc()
		return "Enrol failed: " + err.Error()
	}
	metrics.EnrolmentsTotal.WithLabelValues("enrolled").Inc()
	return "Enrolled"
}

func (p *RowProcessor) isEnrolled(ctx context.Context, userID, courseID int64) bool {
	courses, err := p.dir.UserCourses(ctx, userID)
	if err != nil {
		// Unknown membership state; attempt the enrolment and let the remote
		// side reject a duplicate.
		p.log.Warn().Err(err).Int64("user_id", userID).Msg("course membership lookup failed")
		return false
	}
	for _, c := range courses {
		if c.ID == courseID {
			return true
		}
	}
	return false
}
