package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edudesk/edudesk-api/internal/models"
)

const assignmentColumns = `id, teacher_id, subject_id, assigned_at, status, revoked_at`

// TeacherAssignmentRepository persists teacher-subject assignments. The
// shape mirrors the enrollment store: append plus a reversible status flip.
type TeacherAssignmentRepository struct {
	db *sqlx.DB
}

// NewTeacherAssignmentRepository constructs the repository.
func NewTeacherAssignmentRepository(db *sqlx.DB) *TeacherAssignmentRepository {
	return &TeacherAssignmentRepository{db: db}
}

func (r *TeacherAssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new assignment row.
func (r *TeacherAssignmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.TeacherAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusActive
	}
	const query = `INSERT INTO teacher_assignments (id, teacher_id, subject_id, assigned_at, status, revoked_at)
        VALUES (:id, :teacher_id, :subject_id, :assigned_at, :status, :revoked_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, assignment); err != nil {
		return fmt.Errorf("create teacher assignment: %w", err)
	}
	return nil
}

// ExistsActive reports whether the teacher already delivers the subject.
func (r *TeacherAssignmentRepository) ExistsActive(ctx context.Context, exec sqlx.ExtContext, teacherID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_assignments WHERE teacher_id = $1 AND subject_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, teacherID, subjectID, models.AssignmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher assignment: %w", err)
	}
	return true, nil
}

// Revoke soft-deletes an assignment; only the first caller applies it.
func (r *TeacherAssignmentRepository) Revoke(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error) {
	const query = `UPDATE teacher_assignments SET status = $2, revoked_at = $3 WHERE id = $1 AND status = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, id, models.AssignmentStatusRevoked, at, models.AssignmentStatusActive)
	if err != nil {
		return false, fmt.Errorf("revoke teacher assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke teacher assignment result: %w", err)
	}
	return affected > 0, nil
}

// ListBySubject returns active assignments with display names.
func (r *TeacherAssignmentRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.TeacherAssignmentDetail, error) {
	const query = `SELECT a.id, a.teacher_id, a.subject_id, a.assigned_at, a.status, a.revoked_at,
        t.full_name AS teacher_name, s.name AS subject_name
        FROM teacher_assignments a
        JOIN teachers t ON t.id = a.teacher_id
        JOIN subjects s ON s.id = a.subject_id
        WHERE a.subject_id = $1 AND a.status = $2
        ORDER BY a.assigned_at ASC`
	var assignments []models.TeacherAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, subjectID, models.AssignmentStatusActive); err != nil {
		return nil, fmt.Errorf("list subject assignments: %w", err)
	}
	return assignments, nil
}
