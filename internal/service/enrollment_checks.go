package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edudesk/edudesk-api/internal/models"
	appErrors "github.com/edudesk/edudesk-api/pkg/errors"
)

// enrollmentChecks is the read-only business-rule gate that runs before any
// enrollment mutation. It never writes, so the same checks serve both the
// fail-fast pre-flight on the pool (exec == nil) and the authoritative
// re-check on the transaction that closes the check-then-act window.
type enrollmentChecks struct {
	students    studentDirectory
	subjects    seatLedger
	enrollments enrollmentStore
}

// checkEnroll runs the ordered enroll checks, short-circuiting on the first
// failure, and returns the subject on success. Rule failures come back as
// typed errors; store failures propagate raw for the caller's policy to
// classify.
func (c *enrollmentChecks) checkEnroll(ctx context.Context, exec sqlx.ExtContext, studentID, subjectID string) (*models.Subject, error) {
	exists, err := c.students.Exists(ctx, exec, studentID)
	if err != nil {
		return nil, fmt.Errorf("check student: %w", err)
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	subject, err := c.subjects.FindByID(ctx, exec, subjectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, fmt.Errorf("load subject: %w", err)
	}
	if subject.Retired() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	if !subject.Available() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject unavailable")
	}

	duplicate, err := c.enrollments.ExistsActive(ctx, exec, studentID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("check duplicate enrollment: %w", err)
	}
	if duplicate {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already enrolled")
	}

	return subject, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// checkUnenroll verifies an active enrollment and its owning subject on the
// transactional view. Both misses surface as not-found so the coordinator
// can keep the best-effort unenroll contract.
func (c *enrollmentChecks) checkUnenroll(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (*models.Enrollment, error) {
	enrollment, err := c.enrollments.FindActiveByID(ctx, exec, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, fmt.Errorf("load enrollment: %w", err)
	}

	if _, err := c.subjects.FindByID(ctx, exec, enrollment.SubjectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, fmt.Errorf("load subject: %w", err)
	}

	return enrollment, nil
}
