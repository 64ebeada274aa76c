package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/edudesk/edudesk-api/internal/models"
	appErrors "github.com/edudesk/edudesk-api/pkg/errors"
)

type assignmentStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.TeacherAssignment) error
	ExistsActive(ctx context.Context, exec sqlx.ExtContext, teacherID, subjectID string) (bool, error)
	Revoke(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.TeacherAssignmentDetail, error)
}

type teacherDirectory interface {
	Exists(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
}

// AssignTeacherRequest describes a teacher-subject assignment request.
type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
}

// RevokeResult mirrors UnenrollResult for assignment removal.
type RevokeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TeacherAssignmentService runs the same validate-then-commit pattern as
// enrollment for teacher-subject assignments, minus seat accounting.
type TeacherAssignmentService struct {
	repo      assignmentStore
	teachers  teacherDirectory
	subjects  seatLedger
	tx        txRunner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherAssignmentService constructs TeacherAssignmentService.
func NewTeacherAssignmentService(repo assignmentStore, teachers teacherDirectory, subjects seatLedger, tx txRunner, validate *validator.Validate, logger *zap.Logger) *TeacherAssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherAssignmentService{repo: repo, teachers: teachers, subjects: subjects, tx: tx, validator: validate, logger: logger}
}

// Assign maps a teacher to a subject, rejecting duplicates inside the
// transaction that inserts the row.
func (s *TeacherAssignmentService) Assign(ctx context.Context, req AssignTeacherRequest) (*models.TeacherAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	assignment := &models.TeacherAssignment{
		TeacherID:  req.TeacherID,
		SubjectID:  req.SubjectID,
		AssignedAt: time.Now().UTC(),
		Status:     models.AssignmentStatusActive,
	}

	err := s.tx.InTx(ctx, func(tx sqlx.ExtContext) error {
		exists, err := s.teachers.Exists(ctx, tx, req.TeacherID)
		if err != nil {
			return fmt.Errorf("check teacher: %w", err)
		}
		if !exists {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		subject, err := s.subjects.FindByID(ctx, tx, req.SubjectID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
			}
			return fmt.Errorf("load subject: %w", err)
		}
		if subject.Retired() {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		duplicate, err := s.repo.ExistsActive(ctx, tx, req.TeacherID, req.SubjectID)
		if err != nil {
			return fmt.Errorf("check duplicate assignment: %w", err)
		}
		if duplicate {
			return appErrors.Clone(appErrors.ErrConflict, "teacher already assigned")
		}
		return s.repo.Create(ctx, tx, assignment)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("teacher assigned",
		zap.String("assignment_id", assignment.ID),
		zap.String("teacher_id", assignment.TeacherID),
		zap.String("subject_id", assignment.SubjectID),
	)
	return assignment, nil
}

// Revoke removes an assignment, best-effort: an already-revoked or missing
// assignment reports Success false without an error.
func (s *TeacherAssignmentService) Revoke(ctx context.Context, assignmentID string) (RevokeResult, error) {
	err := s.tx.InTx(ctx, func(tx sqlx.ExtContext) error {
		applied, err := s.repo.Revoke(ctx, tx, assignmentID, time.Now().UTC())
		if err != nil {
			return err
		}
		if !applied {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil
	})
	if err != nil {
		if typed := appErrors.FromError(err); typed.Code == appErrors.ErrNotFound.Code {
			return RevokeResult{Success: false, Message: typed.Message}, nil
		}
		return RevokeResult{}, err
	}
	return RevokeResult{Success: true, Message: "assignment revoked"}, nil
}

// ListBySubject returns the active assignments for a subject.
func (s *TeacherAssignmentService) ListBySubject(ctx context.Context, subjectID string) ([]models.TeacherAssignmentDetail, error) {
	assignments, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}
