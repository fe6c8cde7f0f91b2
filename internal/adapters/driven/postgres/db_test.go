package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

func TestStoreError_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, domain.ErrNotFound},
		{"duplicate stop id", &pq.Error{Code: "23505", Message: "duplicate key value"}, domain.ErrAlreadyExists},
		{"unknown flight reference", &pq.Error{Code: "23503", Message: "violates foreign key"}, domain.ErrInvalidInput},
		{"flight ends before it starts", &pq.Error{Code: "23514", Message: "violates check constraint"}, domain.ErrInvalidInput},
		{"deadlock", &pq.Error{Code: "40P01"}, domain.ErrServiceUnavailable},
		{"network", errors.New("connection reset by peer"), domain.ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storeError("save flight", tt.err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "save flight")
		})
	}
}

func TestInTx_RetriesDeadlocks(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE flights").WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE flights").WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE flights").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runs := 0
	err := db.inTx(context.Background(), func(tx *sql.Tx) error {
		runs++
		_, err := tx.Exec("UPDATE flights SET status = 'DELAYED'")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 3, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_GivesUpAfterAttempts(t *testing.T) {
	db, mock := newMockDB(t)
	db.txAttempts = 2

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE flights").WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()
	}

	err := db.inTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE flights SET status = 'DELAYED'")
		return err
	})

	require.Error(t, err)
	assert.True(t, retryable(err))
	assert.ErrorIs(t, storeError("save flight", err), domain.ErrServiceUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_OtherErrorsAreNotRetried(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE flights").WillReturnError(&pq.Error{Code: "23514"})
	mock.ExpectRollback()

	runs := 0
	err := db.inTx(context.Background(), func(tx *sql.Tx) error {
		runs++
		_, err := tx.Exec("UPDATE flights SET status = 'DELAYED'")
		return err
	})

	require.Error(t, err)
	assert.Equal(t, 1, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
