package service

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edudesk/edudesk-api/internal/models"
	appErrors "github.com/edudesk/edudesk-api/pkg/errors"
)

type fakeAssignments struct {
	rows map[string]*models.TeacherAssignment
}

func newFakeAssignments() *fakeAssignments {
	return &fakeAssignments{rows: make(map[string]*models.TeacherAssignment)}
}

func (f *fakeAssignments) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.TeacherAssignment) error {
	if assignment.ID == "" {
		assignment.ID = assignment.TeacherID + ":" + assignment.SubjectID
	}
	copied := *assignment
	f.rows[assignment.ID] = &copied
	return nil
}

func (f *fakeAssignments) ExistsActive(ctx context.Context, exec sqlx.ExtContext, teacherID, subjectID string) (bool, error) {
	for _, assignment := range f.rows {
		if assignment.TeacherID == teacherID && assignment.SubjectID == subjectID && assignment.Status == models.AssignmentStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAssignments) Revoke(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) (bool, error) {
	assignment, ok := f.rows[id]
	if !ok || assignment.Status != models.AssignmentStatusActive {
		return false, nil
	}
	assignment.Status = models.AssignmentStatusRevoked
	assignment.RevokedAt = &at
	return true, nil
}

func (f *fakeAssignments) ListBySubject(ctx context.Context, subjectID string) ([]models.TeacherAssignmentDetail, error) {
	var out []models.TeacherAssignmentDetail
	for _, assignment := range f.rows {
		if assignment.SubjectID == subjectID && assignment.Status == models.AssignmentStatusActive {
			out = append(out, models.TeacherAssignmentDetail{TeacherAssignment: *assignment})
		}
	}
	return out, nil
}

type fakeTeachers map[string]bool

func (f fakeTeachers) Exists(ctx context.Context, exec sqlx.ExtContext, id string) (bool, error) {
	return f[id], nil
}

func newAssignmentTestService(store *memStore, assignments *fakeAssignments, teachers fakeTeachers) *TeacherAssignmentService {
	return NewTeacherAssignmentService(assignments, teachers, store, &memRunner{store: store}, nil, nil)
}

func TestTeacherAssignmentServiceAssign(t *testing.T) {
	store := newMemStore()
	store.addSubject("sub-1", 30, 0, true)
	assignments := newFakeAssignments()
	svc := newAssignmentTestService(store, assignments, fakeTeachers{"t1": true})

	assignment, err := svc.Assign(context.Background(), AssignTeacherRequest{TeacherID: "t1", SubjectID: "sub-1"})
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentStatusActive, assignment.Status)
	assert.NotEmpty(t, assignment.ID)
}

func TestTeacherAssignmentServiceAssignDuplicate(t *testing.T) {
	store := newMemStore()
	store.addSubject("sub-1", 30, 0, true)
	assignments := newFakeAssignments()
	svc := newAssignmentTestService(store, assignments, fakeTeachers{"t1": true})

	_, err := svc.Assign(context.Background(), AssignTeacherRequest{TeacherID: "t1", SubjectID: "sub-1"})
	require.NoError(t, err)

	_, err = svc.Assign(context.Background(), AssignTeacherRequest{TeacherID: "t1", SubjectID: "sub-1"})
	require.Error(t, err)
	typed := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)
	assert.Equal(t, "teacher already assigned", typed.Message)
}

func TestTeacherAssignmentServiceAssignUnknownTeacher(t *testing.T) {
	store := newMemStore()
	store.addSubject("sub-1", 30, 0, true)
	svc := newAssignmentTestService(store, newFakeAssignments(), fakeTeachers{})

	_, err := svc.Assign(context.Background(), AssignTeacherRequest{TeacherID: "ghost", SubjectID: "sub-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherAssignmentServiceAssignRetiredSubject(t *testing.T) {
	store := newMemStore()
	store.addSubject("sub-1", 30, 0, true)
	retired := time.Now().UTC()
	subject := store.subjects["sub-1"]
	subject.RetiredAt = &retired
	store.subjects["sub-1"] = subject
	svc := newAssignmentTestService(store, newFakeAssignments(), fakeTeachers{"t1": true})

	_, err := svc.Assign(context.Background(), AssignTeacherRequest{TeacherID: "t1", SubjectID: "sub-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherAssignmentServiceRevokeIdempotent(t *testing.T) {
	store := newMemStore()
	store.addSubject("sub-1", 30, 0, true)
	assignments := newFakeAssignments()
	svc := newAssignmentTestService(store, assignments, fakeTeachers{"t1": true})

	assignment, err := svc.Assign(context.Background(), AssignTeacherRequest{TeacherID: "t1", SubjectID: "sub-1"})
	require.NoError(t, err)

	result, err := svc.Revoke(context.Background(), assignment.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	result, err = svc.Revoke(context.Background(), assignment.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "assignment not found", result.Message)
}
