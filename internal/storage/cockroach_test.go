package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogforge/core/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestCockroachStore_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := &CockroachStore{db: db}
	stmt, err := db.Prepare(`INSERT INTO dialogs`)
	require.NoError(t, err)
	store.stmtCreateDialog = stmt

	dialog := &models.Dialog{ID: "d1", Status: models.DialogPending, CurrentState: "start"}

	mock.ExpectPrepare("INSERT INTO dialogs")
	mock.ExpectExec("INSERT INTO dialogs").
		WithArgs("d1", "", "", string(models.DialogPending), "start",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Create(context.Background(), dialog))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCockroachStore_Create_RejectsMissingID(t *testing.T) {
	db, _ := setupMockDB(t)
	defer db.Close()
	store := &CockroachStore{db: db}

	err := store.Create(context.Background(), &models.Dialog{})
	require.Error(t, err)
}

func TestCockroachStore_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := &CockroachStore{db: db}
	stmt, err := db.Prepare(`SELECT`)
	require.NoError(t, err)
	store.stmtGetDialog = stmt

	mock.ExpectPrepare("SELECT")
	mock.ExpectQuery("SELECT").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err = store.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCockroachStore_Update_NoRowsAffectedIsNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := &CockroachStore{db: db}
	stmt, err := db.Prepare(`UPDATE dialogs`)
	require.NoError(t, err)
	store.stmtUpdateDialog = stmt

	dialog := &models.Dialog{ID: "missing", Status: models.DialogRunning, CurrentState: "step_0"}

	mock.ExpectPrepare("UPDATE dialogs")
	mock.ExpectExec("UPDATE dialogs").WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.Update(context.Background(), dialog)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCockroachStore_SaveDialog_UpsertsMessagesInTransaction(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := &CockroachStore{db: db}
	updateStmt, err := db.Prepare(`UPDATE dialogs`)
	require.NoError(t, err)
	store.stmtUpdateDialog = updateStmt
	upsertStmt, err := db.Prepare(`INSERT INTO messages`)
	require.NoError(t, err)
	store.stmtUpsertMessage = upsertStmt

	dialog := &models.Dialog{ID: "d1", Status: models.DialogRunning, CurrentState: "step_1"}
	msg := &models.Message{ID: "m1", DialogID: "d1", Role: models.RoleAssistant, Model: "x", Text: "hi", Timestamp: time.Now()}

	mock.ExpectBegin()
	mock.ExpectPrepare("UPDATE dialogs")
	mock.ExpectExec("UPDATE dialogs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id FROM messages`).WithArgs("d1").WillReturnError(sql.ErrNoRows)
	mock.ExpectPrepare("INSERT INTO messages")
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveDialog(context.Background(), dialog, []*models.Message{msg}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCockroachStore_SaveDialog_RollsBackOnUpdateError(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store := &CockroachStore{db: db}
	updateStmt, err := db.Prepare(`UPDATE dialogs`)
	require.NoError(t, err)
	store.stmtUpdateDialog = updateStmt

	dialog := &models.Dialog{ID: "d1", Status: models.DialogFailed, CurrentState: "step_1"}

	mock.ExpectBegin()
	mock.ExpectPrepare("UPDATE dialogs")
	mock.ExpectExec("UPDATE dialogs").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = store.SaveDialog(context.Background(), dialog, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
