package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/edudesk/edudesk-api/internal/models"
	appErrors "github.com/edudesk/edudesk-api/pkg/errors"
)

type enrollmentStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	FindActiveByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	FindActiveByStudentAndSubject(ctx context.Context, exec sqlx.ExtContext, studentID, subjectID string) (*models.Enrollment, error)
	ExistsActive(ctx context.Context, exec sqlx.ExtContext, studentID, subjectID string) (bool, error)
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type seatLedger interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error)
	ReserveSeat(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
	ReleaseSeat(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type studentDirectory interface {
	Exists(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error)
}

type txRunner interface {
	InTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error
}

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string)
}

type enrollmentMetrics interface {
	RecordEnrollment(operation, result string)
}

// EnrollStudentRequest describes an enrollment creation request. Omitted
// date, semester and year fall back to now, FIRST and the enrollment year.
type EnrollStudentRequest struct {
	StudentID  string          `json:"student_id" validate:"required"`
	SubjectID  string          `json:"subject_id" validate:"required"`
	Fees       float64         `json:"fees" validate:"gte=0"`
	EnrolledAt *time.Time      `json:"enrolled_at,omitempty"`
	Semester   models.Semester `json:"semester,omitempty"`
	Year       int             `json:"year,omitempty" validate:"omitempty,gte=1"`
}

// UnenrollResult reports the best-effort unenroll outcome. Success false
// means the enrollment (or its subject) was already gone; callers map it to
// a 404 rather than an error.
type UnenrollResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// EnrollmentService coordinates enroll and unenroll as atomic units across
// the enrollment store and the subject seat ledger. Every mutation of seat
// counters in the system goes through a transaction owned here.
type EnrollmentService struct {
	repo      enrollmentStore
	subjects  seatLedger
	students  studentDirectory
	tx        txRunner
	cache     availabilityCache
	metrics   enrollmentMetrics
	checks    enrollmentChecks
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService. Cache and metrics are
// optional.
func NewEnrollmentService(repo enrollmentStore, subjects seatLedger, students studentDirectory, tx txRunner, cache availabilityCache, metrics enrollmentMetrics, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &EnrollmentService{
		repo:      repo,
		subjects:  subjects,
		students:  students,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		checks:    enrollmentChecks{students: students, subjects: subjects, enrollments: repo},
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// Enroll claims one of the subject's seats for the student. The enrollment
// row and the seat increment commit together or not at all; a reader never
// observes one without the other.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	enrolledAt := time.Now().UTC()
	if req.EnrolledAt != nil {
		enrolledAt = req.EnrolledAt.UTC()
	}
	semester := req.Semester
	if semester == "" {
		semester = models.SemesterFirst
	}
	if !semester.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester must be FIRST or SECOND")
	}
	year := req.Year
	if year == 0 {
		year = enrolledAt.Year()
	}

	// Fail fast on the pool view before paying for a transaction. The
	// result is advisory only; the checks run again inside the transaction.
	if _, err := s.checks.checkEnroll(ctx, nil, req.StudentID, req.SubjectID); err != nil {
		s.record("enroll", "rejected")
		if appErrors.IsTyped(err) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}

	enrollment := &models.Enrollment{
		StudentID:  req.StudentID,
		SubjectID:  req.SubjectID,
		Semester:   semester,
		Year:       year,
		EnrolledAt: enrolledAt,
		Fees:       req.Fees,
		Status:     models.EnrollmentStatusActive,
	}

	err := s.tx.InTx(ctx, func(tx sqlx.ExtContext) error {
		if _, err := s.checks.checkEnroll(ctx, tx, req.StudentID, req.SubjectID); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, enrollment); err != nil {
			return err
		}
		applied, err := s.subjects.ReserveSeat(ctx, tx, req.SubjectID)
		if err != nil {
			return err
		}
		if !applied {
			// The conditional update matched nothing: either a concurrent
			// enrollment took the last seat after our re-check, or the
			// subject flipped unavailable. Distinguish on the tx view.
			subject, ferr := s.subjects.FindByID(ctx, tx, req.SubjectID)
			if ferr == nil && !subject.Locked {
				return appErrors.Clone(appErrors.ErrConflict, "subject unavailable")
			}
			return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
		}
		return nil
	})
	if err != nil {
		s.record("enroll", outcomeLabel(err))
		return nil, err
	}

	s.invalidateAvailability(ctx, req.SubjectID)
	s.record("enroll", "committed")
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("subject_id", enrollment.SubjectID),
	)
	return enrollment, nil
}

// Unenroll releases the enrollment's seat and drops the record, atomically.
// A missing or already-dropped enrollment yields Success false with a nil
// error; a concurrent double-unenroll therefore releases exactly one seat.
func (s *EnrollmentService) Unenroll(ctx context.Context, enrollmentID string) (UnenrollResult, error) {
	var subjectID string

	err := s.tx.InTx(ctx, func(tx sqlx.ExtContext) error {
		enrollment, err := s.checks.checkUnenroll(ctx, tx, enrollmentID)
		if err != nil {
			return err
		}
		applied, err := s.repo.SoftDelete(ctx, tx, enrollmentID, time.Now().UTC())
		if err != nil {
			return err
		}
		if !applied {
			// Lost a race with another unenroll between the check and the
			// flip; report not found like any other miss.
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		if err := s.subjects.ReleaseSeat(ctx, tx, enrollment.SubjectID); err != nil {
			return err
		}
		subjectID = enrollment.SubjectID
		return nil
	})
	if err != nil {
		if typed := appErrors.FromError(err); typed.Code == appErrors.ErrNotFound.Code {
			s.record("unenroll", "missed")
			return UnenrollResult{Success: false, Message: typed.Message}, nil
		}
		s.record("unenroll", outcomeLabel(err))
		return UnenrollResult{}, err
	}

	s.invalidateAvailability(ctx, subjectID)
	s.record("unenroll", "committed")
	s.logger.Info("student unenrolled",
		zap.String("enrollment_id", enrollmentID),
		zap.String("subject_id", subjectID),
	)
	return UnenrollResult{Success: true, Message: "enrollment dropped"}, nil
}

// IsSubjectAvailable reports whether the subject can accept an enrollment,
// through a short-TTL cache. The answer is advisory; enroll re-checks on
// the transaction.
func (s *EnrollmentService) IsSubjectAvailable(ctx context.Context, subjectID string) (bool, error) {
	key := availabilityCacheKey(subjectID)
	if s.cache != nil {
		var cached bool
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	subject, err := s.subjects.FindByID(ctx, nil, subjectID)
	available := false
	switch {
	case err == nil:
		available = subject.Available()
	case isNoRows(err):
		available = false
	default:
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, available, s.cacheTTL); err != nil {
			s.logger.Warn("availability cache write failed", zap.String("subject_id", subjectID), zap.Error(err))
		}
	}
	return available, nil
}

// HasActiveDuplicate reports whether the student already holds a seat on
// the subject.
func (s *EnrollmentService) HasActiveDuplicate(ctx context.Context, studentID, subjectID string) (bool, error) {
	exists, err := s.repo.ExistsActive(ctx, nil, studentID, subjectID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	return exists, nil
}

// List returns enrollment history with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

func (s *EnrollmentService) invalidateAvailability(ctx context.Context, subjectID string) {
	if s.cache == nil || subjectID == "" {
		return
	}
	s.cache.Delete(ctx, availabilityCacheKey(subjectID))
}

func (s *EnrollmentService) record(operation, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordEnrollment(operation, result)
}

func availabilityCacheKey(subjectID string) string {
	return "subject:availability:" + subjectID
}

func outcomeLabel(err error) string {
	switch appErrors.FromError(err).Code {
	case appErrors.ErrCapacityExceeded.Code:
		return "capacity_exceeded"
	case appErrors.ErrConflict.Code:
		return "conflict"
	case appErrors.ErrNotFound.Code:
		return "not_found"
	case appErrors.ErrTransactionFail.Code:
		return "transaction_failed"
	default:
		return "error"
	}
}
