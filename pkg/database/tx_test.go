package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/edudesk/edudesk-api/pkg/errors"
)

func newMockRunner(t *testing.T) (*Runner, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "postgres")
	t.Cleanup(func() { db.Close() })
	return NewRunner(db), mock
}

func TestRunnerCommits(t *testing.T) {
	runner, mock := newMockRunner(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE subjects").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := runner.InTx(context.Background(), func(tx sqlx.ExtContext) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE subjects SET current_slots = current_slots + 1")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunnerRollsBackAndWraps(t *testing.T) {
	runner, mock := newMockRunner(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	cause := errors.New("connection reset")
	err := runner.InTx(context.Background(), func(tx sqlx.ExtContext) error {
		return cause
	})
	require.Error(t, err)
	typed := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrTransactionFail.Code, typed.Code)
	assert.ErrorIs(t, err, cause)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunnerPassesTypedErrorsThrough(t *testing.T) {
	runner, mock := newMockRunner(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	domainErr := appErrors.Clone(appErrors.ErrConflict, "already enrolled")
	err := runner.InTx(context.Background(), func(tx sqlx.ExtContext) error {
		return domainErr
	})
	require.Error(t, err)
	typed := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)
	assert.Equal(t, "already enrolled", typed.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunnerCommitFailure(t *testing.T) {
	runner, mock := newMockRunner(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("commit refused"))

	err := runner.InTx(context.Background(), func(tx sqlx.ExtContext) error {
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTransactionFail.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunnerBeginFailure(t *testing.T) {
	runner, mock := newMockRunner(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many clients"))

	err := runner.InTx(context.Background(), func(tx sqlx.ExtContext) error {
		t.Fatal("fn must not run when begin fails")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTransactionFail.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
