package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edudesk/edudesk-api/internal/models"
)

func TestEnrollmentRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{
		StudentID:  "s1",
		SubjectID:  "sub-1",
		Semester:   models.SemesterFirst,
		Year:       2026,
		EnrolledAt: time.Now().UTC(),
		Fees:       250,
	}
	require.NoError(t, repo.Create(context.Background(), nil, enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySoftDeleteIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("enr-1", string(models.EnrollmentStatusDropped), at, string(models.EnrollmentStatusActive)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("enr-1", string(models.EnrollmentStatusDropped), at, string(models.EnrollmentStatusActive)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.SoftDelete(context.Background(), nil, "enr-1", at)
	require.NoError(t, err)
	assert.True(t, applied)

	// Second drop of the same enrollment matches nothing.
	applied, err = repo.SoftDelete(context.Background(), nil, "enr-1", at)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM enrollments").
		WithArgs("s1", "sub-1", string(models.EnrollmentStatusActive)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), nil, "s1", "sub-1")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery("SELECT 1 FROM enrollments").
		WithArgs("s2", "sub-1", string(models.EnrollmentStatusActive)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsActive(context.Background(), nil, "s2", "sub-1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountActiveBySubject(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM enrollments").
		WithArgs("sub-1", string(models.EnrollmentStatusActive)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := repo.CountActiveBySubject(context.Background(), nil, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 12, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
