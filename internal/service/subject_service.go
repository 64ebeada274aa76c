package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/edudesk/edudesk-api/internal/models"
	appErrors "github.com/edudesk/edudesk-api/pkg/errors"
	"github.com/edudesk/edudesk-api/pkg/export"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Retire(ctx context.Context, id string, at time.Time) (bool, error)
}

type rosterReader interface {
	CountActiveBySubject(ctx context.Context, exec sqlx.ExtContext, subjectID string) (int, error)
	ListActiveBySubject(ctx context.Context, subjectID string) ([]models.EnrollmentDetail, error)
}

type rosterExporter interface {
	Render(table export.Table, title string) ([]byte, error)
}

// CreateSubjectRequest describes subject creation.
type CreateSubjectRequest struct {
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	TotalSlots int    `json:"total_slots" validate:"required,gte=1"`
	Active     *bool  `json:"active,omitempty"`
}

// UpdateSubjectRequest describes subject updates.
type UpdateSubjectRequest struct {
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	TotalSlots int    `json:"total_slots" validate:"required,gte=1"`
	Active     *bool  `json:"active,omitempty"`
}

// SubjectService manages the subject catalogue. It never touches seat
// counters; those belong to the enrollment transaction.
type SubjectService struct {
	repo      subjectRepository
	roster    rosterReader
	csv       *export.CSVExporter
	pdf       rosterExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs SubjectService.
func NewSubjectService(repo subjectRepository, roster rosterReader, csv *export.CSVExporter, pdf rosterExporter, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, roster: roster, csv: csv, pdf: pdf, validator: validate, logger: logger}
}

// List returns subjects with pagination metadata.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return subjects, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a subject by id, including soft-deleted ones for audit reads.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create registers a new subject with an empty ledger.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	exists, err := s.repo.ExistsByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate subject code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already in use")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	subject := &models.Subject{
		Code:       req.Code,
		Name:       req.Name,
		TotalSlots: req.TotalSlots,
		Active:     active,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// Update modifies a subject. Shrinking capacity below the seats already
// claimed is rejected to keep current_slots <= total_slots intact.
func (s *SubjectService) Update(ctx context.Context, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.Retired() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	if req.TotalSlots < subject.CurrentSlots {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("total slots cannot drop below %d seats in use", subject.CurrentSlots))
	}
	exists, err := s.repo.ExistsByCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate subject code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already in use")
	}

	subject.Code = req.Code
	subject.Name = req.Name
	subject.TotalSlots = req.TotalSlots
	if req.Active != nil {
		subject.Active = *req.Active
	}
	if err := s.repo.Update(ctx, subject); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	subject.Locked = subject.CurrentSlots >= subject.TotalSlots
	return subject, nil
}

// Retire soft-deletes a subject once no seats remain claimed.
func (s *SubjectService) Retire(ctx context.Context, id string) error {
	count, err := s.roster.CountActiveBySubject(ctx, nil, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "subject has active enrollments")
	}
	applied, err := s.repo.Retire(ctx, id, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to retire subject")
	}
	if !applied {
		return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
	}
	return nil
}

// ExportRoster renders the active roster as CSV or PDF bytes.
func (s *SubjectService) ExportRoster(ctx context.Context, id, format string) ([]byte, string, error) {
	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	roster, err := s.roster.ListActiveBySubject(ctx, id)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	table := export.Table{
		Columns: []string{"Student", "Semester", "Year", "Enrolled At", "Fees"},
	}
	for _, row := range roster {
		table.Rows = append(table.Rows, []string{
			row.StudentName,
			string(row.Semester),
			strconv.Itoa(row.Year),
			row.EnrolledAt.Format("2006-01-02"),
			strconv.FormatFloat(row.Fees, 'f', 2, 64),
		})
	}

	switch format {
	case "csv", "":
		payload, err := s.csv.Render(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(table, fmt.Sprintf("%s roster", subject.Name))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
