package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edudesk/edudesk-api/internal/models"
	appErrors "github.com/edudesk/edudesk-api/pkg/errors"
	"github.com/edudesk/edudesk-api/pkg/export"
)

type fakeSubjectRepo struct {
	subjects map[string]*models.Subject
}

func newFakeSubjectRepo() *fakeSubjectRepo {
	return &fakeSubjectRepo{subjects: make(map[string]*models.Subject)}
}

func (f *fakeSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	var out []models.Subject
	for _, subject := range f.subjects {
		out = append(out, *subject)
	}
	return out, len(out), nil
}

func (f *fakeSubjectRepo) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error) {
	subject, ok := f.subjects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *subject
	copied.Locked = copied.CurrentSlots >= copied.TotalSlots
	return &copied, nil
}

func (f *fakeSubjectRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	for id, subject := range f.subjects {
		if id != excludeID && strings.EqualFold(subject.Code, code) && subject.RetiredAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = subject.Code
	}
	subject.CurrentSlots = 0
	copied := *subject
	f.subjects[subject.ID] = &copied
	return nil
}

func (f *fakeSubjectRepo) Update(ctx context.Context, subject *models.Subject) error {
	existing, ok := f.subjects[subject.ID]
	if !ok || existing.RetiredAt != nil {
		return sql.ErrNoRows
	}
	copied := *subject
	copied.CurrentSlots = existing.CurrentSlots
	f.subjects[subject.ID] = &copied
	return nil
}

func (f *fakeSubjectRepo) Retire(ctx context.Context, id string, at time.Time) (bool, error) {
	subject, ok := f.subjects[id]
	if !ok || subject.RetiredAt != nil {
		return false, nil
	}
	subject.RetiredAt = &at
	return true, nil
}

type fakeRoster struct {
	counts map[string]int
	roster map[string][]models.EnrollmentDetail
}

func (f *fakeRoster) CountActiveBySubject(ctx context.Context, exec sqlx.ExtContext, subjectID string) (int, error) {
	return f.counts[subjectID], nil
}

func (f *fakeRoster) ListActiveBySubject(ctx context.Context, subjectID string) ([]models.EnrollmentDetail, error) {
	return f.roster[subjectID], nil
}

type fakePDF struct {
	titles []string
}

func (f *fakePDF) Render(table export.Table, title string) ([]byte, error) {
	f.titles = append(f.titles, title)
	return []byte("%PDF-1.4"), nil
}

func newSubjectTestService(repo *fakeSubjectRepo, roster *fakeRoster) (*SubjectService, *fakePDF) {
	if roster == nil {
		roster = &fakeRoster{counts: map[string]int{}, roster: map[string][]models.EnrollmentDetail{}}
	}
	pdf := &fakePDF{}
	return NewSubjectService(repo, roster, export.NewCSVExporter(), pdf, nil, nil), pdf
}

func TestSubjectServiceCreateDuplicateCode(t *testing.T) {
	repo := newFakeSubjectRepo()
	svc, _ := newSubjectTestService(repo, nil)

	_, err := svc.Create(context.Background(), CreateSubjectRequest{Code: "MATH7", Name: "Mathematics", TotalSlots: 30})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateSubjectRequest{Code: "math7", Name: "Mathematics II", TotalSlots: 20})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceCreateInvalidPayload(t *testing.T) {
	repo := newFakeSubjectRepo()
	svc, _ := newSubjectTestService(repo, nil)

	_, err := svc.Create(context.Background(), CreateSubjectRequest{Code: "MATH7", Name: "Mathematics", TotalSlots: 0})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceUpdateRejectsShrinkBelowUsage(t *testing.T) {
	repo := newFakeSubjectRepo()
	repo.subjects["sub-1"] = &models.Subject{ID: "sub-1", Code: "MATH7", Name: "Mathematics", TotalSlots: 30, CurrentSlots: 12, Active: true}
	svc, _ := newSubjectTestService(repo, nil)

	_, err := svc.Update(context.Background(), "sub-1", UpdateSubjectRequest{Code: "MATH7", Name: "Mathematics", TotalSlots: 10})
	require.Error(t, err)
	typed := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)
	assert.Contains(t, typed.Message, "12 seats in use")
}

func TestSubjectServiceUpdateRecomputesLock(t *testing.T) {
	repo := newFakeSubjectRepo()
	repo.subjects["sub-1"] = &models.Subject{ID: "sub-1", Code: "MATH7", Name: "Mathematics", TotalSlots: 30, CurrentSlots: 12, Active: true}
	svc, _ := newSubjectTestService(repo, nil)

	subject, err := svc.Update(context.Background(), "sub-1", UpdateSubjectRequest{Code: "MATH7", Name: "Mathematics", TotalSlots: 12})
	require.NoError(t, err)
	assert.True(t, subject.Locked)

	subject, err = svc.Update(context.Background(), "sub-1", UpdateSubjectRequest{Code: "MATH7", Name: "Mathematics", TotalSlots: 40})
	require.NoError(t, err)
	assert.False(t, subject.Locked)
}

func TestSubjectServiceUpdateRetired(t *testing.T) {
	repo := newFakeSubjectRepo()
	at := time.Now().UTC()
	repo.subjects["sub-1"] = &models.Subject{ID: "sub-1", Code: "MATH7", Name: "Mathematics", TotalSlots: 30, Active: true, RetiredAt: &at}
	svc, _ := newSubjectTestService(repo, nil)

	_, err := svc.Update(context.Background(), "sub-1", UpdateSubjectRequest{Code: "MATH7", Name: "Mathematics", TotalSlots: 30})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceRetireBlockedByEnrollments(t *testing.T) {
	repo := newFakeSubjectRepo()
	repo.subjects["sub-1"] = &models.Subject{ID: "sub-1", Code: "MATH7", Name: "Mathematics", TotalSlots: 30, CurrentSlots: 3, Active: true}
	roster := &fakeRoster{counts: map[string]int{"sub-1": 3}}
	svc, _ := newSubjectTestService(repo, roster)

	err := svc.Retire(context.Background(), "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.subjects["sub-1"].RetiredAt)
}

func TestSubjectServiceRetire(t *testing.T) {
	repo := newFakeSubjectRepo()
	repo.subjects["sub-1"] = &models.Subject{ID: "sub-1", Code: "MATH7", Name: "Mathematics", TotalSlots: 30, Active: true}
	svc, _ := newSubjectTestService(repo, nil)

	require.NoError(t, svc.Retire(context.Background(), "sub-1"))
	assert.NotNil(t, repo.subjects["sub-1"].RetiredAt)

	err := svc.Retire(context.Background(), "sub-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceExportRosterCSV(t *testing.T) {
	repo := newFakeSubjectRepo()
	repo.subjects["sub-1"] = &models.Subject{ID: "sub-1", Code: "MATH7", Name: "Mathematics", TotalSlots: 30, CurrentSlots: 1, Active: true}
	roster := &fakeRoster{
		counts: map[string]int{},
		roster: map[string][]models.EnrollmentDetail{
			"sub-1": {
				{
					Enrollment: models.Enrollment{
						ID:         "enr-1",
						StudentID:  "s1",
						SubjectID:  "sub-1",
						Semester:   models.SemesterFirst,
						Year:       2026,
						EnrolledAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
						Fees:       250,
						Status:     models.EnrollmentStatusActive,
					},
					StudentName: "Ani Wijaya",
					SubjectName: "Mathematics",
				},
			},
		},
	}
	svc, _ := newSubjectTestService(repo, roster)

	payload, contentType, err := svc.ExportRoster(context.Background(), "sub-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	body := string(payload)
	assert.Contains(t, body, "Student,Semester,Year,Enrolled At,Fees")
	assert.Contains(t, body, "Ani Wijaya,FIRST,2026,2026-08-01,250.00")
}

func TestSubjectServiceExportRosterPDF(t *testing.T) {
	repo := newFakeSubjectRepo()
	repo.subjects["sub-1"] = &models.Subject{ID: "sub-1", Code: "MATH7", Name: "Mathematics", TotalSlots: 30, Active: true}
	svc, pdf := newSubjectTestService(repo, nil)

	payload, contentType, err := svc.ExportRoster(context.Background(), "sub-1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.NotEmpty(t, payload)
	require.Len(t, pdf.titles, 1)
	assert.Equal(t, "Mathematics roster", pdf.titles[0])
}

func TestSubjectServiceExportRosterBadFormat(t *testing.T) {
	repo := newFakeSubjectRepo()
	repo.subjects["sub-1"] = &models.Subject{ID: "sub-1", Code: "MATH7", Name: "Mathematics", TotalSlots: 30, Active: true}
	svc, _ := newSubjectTestService(repo, nil)

	_, _, err := svc.ExportRoster(context.Background(), "sub-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceGetMissing(t *testing.T) {
	repo := newFakeSubjectRepo()
	svc, _ := newSubjectTestService(repo, nil)

	_, err := svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
