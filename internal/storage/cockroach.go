package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/dialogforge/core/internal/models"
)

// CockroachStore implements DialogStore and MessageStore against a
// CockroachDB/Postgres-compatible backend via database/sql, following the
// teacher's sessions.CockroachStore shape: one struct holding the pool and a
// fixed set of prepared statements for the hot paths.
//
// Expected schema (created by the operator's migrations, not by this
// package):
//
//	CREATE TABLE dialogs (
//	  id               TEXT PRIMARY KEY,
//	  description      TEXT NOT NULL DEFAULT '',
//	  goal             TEXT NOT NULL DEFAULT '',
//	  status           TEXT NOT NULL,
//	  current_state    TEXT NOT NULL,
//	  workflow_data    JSONB NOT NULL,
//	  template         JSONB NOT NULL,
//	  error            TEXT NOT NULL DEFAULT '',
//	  created_at       TIMESTAMPTZ NOT NULL,
//	  updated_at       TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE messages (
//	  id           TEXT PRIMARY KEY,
//	  dialog_id    TEXT NOT NULL REFERENCES dialogs(id),
//	  parent_id    TEXT,
//	  role         TEXT NOT NULL,
//	  model        TEXT NOT NULL DEFAULT '',
//	  text         TEXT NOT NULL,
//	  status       TEXT NOT NULL,
//	  mime_type    TEXT NOT NULL,
//	  extra        JSONB,
//	  timestamp    TIMESTAMPTZ NOT NULL
//	);
type CockroachStore struct {
	db *sql.DB

	stmtCreateDialog   *sql.Stmt
	stmtGetDialog      *sql.Stmt
	stmtUpdateDialog   *sql.Stmt
	stmtGetRecent      *sql.Stmt
	stmtFilterByStatus *sql.Stmt
	stmtGetMessages    *sql.Stmt
	stmtUpsertMessage  *sql.Stmt
}

// NewCockroachStore opens a connection pool against dsn and prepares the
// hot-path statements.
func NewCockroachStore(dsn string) (*CockroachStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage: dsn is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping database: %w", err)
	}

	s := &CockroachStore{db: db}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: prepare statements: %w", err)
	}
	return s, nil
}

func (s *CockroachStore) prepareStatements() error {
	var err error

	s.stmtCreateDialog, err = s.db.Prepare(`
		INSERT INTO dialogs (id, description, goal, status, current_state, workflow_data, template, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("create dialog: %w", err)
	}

	s.stmtGetDialog, err = s.db.Prepare(`
		SELECT id, description, goal, status, current_state, workflow_data, template, error, created_at, updated_at
		FROM dialogs WHERE id = $1
	`)
	if err != nil {
		return fmt.Errorf("get dialog: %w", err)
	}

	s.stmtUpdateDialog, err = s.db.Prepare(`
		UPDATE dialogs SET description = $1, goal = $2, status = $3, current_state = $4,
			workflow_data = $5, template = $6, error = $7, updated_at = $8
		WHERE id = $9
	`)
	if err != nil {
		return fmt.Errorf("update dialog: %w", err)
	}

	s.stmtGetRecent, err = s.db.Prepare(`
		SELECT id, description, goal, status, current_state, workflow_data, template, error, created_at, updated_at
		FROM dialogs ORDER BY created_at DESC LIMIT $1
	`)
	if err != nil {
		return fmt.Errorf("get recent: %w", err)
	}

	s.stmtFilterByStatus, err = s.db.Prepare(`
		SELECT id, description, goal, status, current_state, workflow_data, template, error, created_at, updated_at
		FROM dialogs WHERE status = $1 ORDER BY created_at DESC LIMIT $2
	`)
	if err != nil {
		return fmt.Errorf("filter by status: %w", err)
	}

	s.stmtGetMessages, err = s.db.Prepare(`
		SELECT id, dialog_id, parent_id, role, model, text, status, mime_type, extra, timestamp
		FROM messages WHERE dialog_id = $1 ORDER BY timestamp ASC
	`)
	if err != nil {
		return fmt.Errorf("get messages: %w", err)
	}

	s.stmtUpsertMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, dialog_id, parent_id, role, model, text, status, mime_type, extra, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id, role = EXCLUDED.role, model = EXCLUDED.model,
			text = EXCLUDED.text, status = EXCLUDED.status, mime_type = EXCLUDED.mime_type,
			extra = EXCLUDED.extra, timestamp = EXCLUDED.timestamp
	`)
	if err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	return nil
}

// Close releases the prepared statements and the underlying pool.
func (s *CockroachStore) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.stmtCreateDialog, s.stmtGetDialog, s.stmtUpdateDialog,
		s.stmtGetRecent, s.stmtFilterByStatus, s.stmtGetMessages, s.stmtUpsertMessage,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

func (s *CockroachStore) Create(ctx context.Context, dialog *models.Dialog) error {
	if dialog == nil || dialog.ID == "" {
		return fmt.Errorf("storage: dialog id is required")
	}
	workflowData, template, err := marshalDialogDocs(dialog)
	if err != nil {
		return err
	}

	now := time.Now()
	dialog.CreatedAt = now
	dialog.UpdatedAt = now

	_, err = s.stmtCreateDialog.ExecContext(ctx,
		dialog.ID, dialog.Description, dialog.Goal, dialog.Status, dialog.CurrentState,
		workflowData, template, dialog.Error, dialog.CreatedAt, dialog.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create dialog: %w", err)
	}
	return nil
}

func (s *CockroachStore) GetByID(ctx context.Context, id string) (*models.Dialog, error) {
	return scanDialog(s.stmtGetDialog.QueryRowContext(ctx, id), id)
}

func (s *CockroachStore) GetWithMessages(ctx context.Context, id string) (*models.Dialog, error) {
	dialog, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.GetByDialog(ctx, id)
	if err != nil {
		return nil, err
	}
	dialog.Messages = make([]models.Message, len(msgs))
	for i, m := range msgs {
		dialog.Messages[i] = *m
	}
	return dialog, nil
}

func (s *CockroachStore) Update(ctx context.Context, dialog *models.Dialog) error {
	workflowData, template, err := marshalDialogDocs(dialog)
	if err != nil {
		return err
	}
	dialog.UpdatedAt = time.Now()

	result, err := s.stmtUpdateDialog.ExecContext(ctx,
		dialog.Description, dialog.Goal, dialog.Status, dialog.CurrentState,
		workflowData, template, dialog.Error, dialog.UpdatedAt, dialog.ID,
	)
	if err != nil {
		return fmt.Errorf("storage: update dialog: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: update dialog rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("storage: dialog %s: %w", dialog.ID, ErrNotFound)
	}
	return nil
}

func (s *CockroachStore) GetRecent(ctx context.Context, limit int) ([]*models.Dialog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.stmtGetRecent.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: get recent dialogs: %w", err)
	}
	defer rows.Close()
	return scanDialogRows(rows)
}

func (s *CockroachStore) FilterByStatus(ctx context.Context, status models.DialogStatus, limit int) ([]*models.Dialog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.stmtFilterByStatus.QueryContext(ctx, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("storage: filter dialogs by status: %w", err)
	}
	defer rows.Close()
	return scanDialogRows(rows)
}

// SaveDialog wraps the dialog update and all pending message upserts in one
// transaction, matching §4.2's transactional save discipline. Parent-chain
// linkage is fixed in declaration order before anything is written: a
// message whose ParentID is nil inherits the previous message's ID (the
// last existing message for the dialog, or the previous pending message).
func (s *CockroachStore) SaveDialog(ctx context.Context, dialog *models.Dialog, pendingMessages []*models.Message) error {
	workflowData, template, err := marshalDialogDocs(dialog)
	if err != nil {
		return err
	}
	dialog.UpdatedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin save dialog tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.StmtContext(ctx, s.stmtUpdateDialog).ExecContext(ctx,
		dialog.Description, dialog.Goal, dialog.Status, dialog.CurrentState,
		workflowData, template, dialog.Error, dialog.UpdatedAt, dialog.ID,
	)
	if err != nil {
		return fmt.Errorf("storage: save dialog update: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: save dialog rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("storage: dialog %s: %w", dialog.ID, ErrNotFound)
	}

	var lastID *string
	row := tx.QueryRowContext(ctx, `SELECT id FROM messages WHERE dialog_id = $1 ORDER BY timestamp DESC LIMIT 1`, dialog.ID)
	var existingLast string
	if err := row.Scan(&existingLast); err == nil {
		lastID = &existingLast
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("storage: lookup last message: %w", err)
	}

	for _, msg := range pendingMessages {
		if msg.ParentID == nil {
			msg.ParentID = lastID
		}
		id := msg.ID
		lastID = &id

		extra, err := json.Marshal(msg.Extra)
		if err != nil {
			return fmt.Errorf("storage: marshal message extra: %w", err)
		}
		_, err = tx.StmtContext(ctx, s.stmtUpsertMessage).ExecContext(ctx,
			msg.ID, msg.DialogID, msg.ParentID, string(msg.Role), msg.Model,
			msg.Text, string(msg.Status), msg.MimeType, extra, msg.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("storage: upsert message %s: %w", msg.ID, err)
		}
	}

	return tx.Commit()
}

func (s *CockroachStore) Upsert(ctx context.Context, msg *models.Message) error {
	extra, err := json.Marshal(msg.Extra)
	if err != nil {
		return fmt.Errorf("storage: marshal message extra: %w", err)
	}
	_, err = s.stmtUpsertMessage.ExecContext(ctx,
		msg.ID, msg.DialogID, msg.ParentID, string(msg.Role), msg.Model,
		msg.Text, string(msg.Status), msg.MimeType, extra, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *CockroachStore) GetByDialog(ctx context.Context, dialogID string) ([]*models.Message, error) {
	rows, err := s.stmtGetMessages.QueryContext(ctx, dialogID)
	if err != nil {
		return nil, fmt.Errorf("storage: get messages for dialog %s: %w", dialogID, err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var extra []byte
		var role, status string
		if err := rows.Scan(&msg.ID, &msg.DialogID, &msg.ParentID, &role, &msg.Model,
			&msg.Text, &status, &msg.MimeType, &extra, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("storage: scan message: %w", err)
		}
		msg.Role = models.Role(role)
		msg.Status = models.MessageStatus(status)
		if len(extra) > 0 && string(extra) != "null" {
			if err := json.Unmarshal(extra, &msg.Extra); err != nil {
				return nil, fmt.Errorf("storage: unmarshal message extra: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func marshalDialogDocs(d *models.Dialog) (workflowData, template []byte, err error) {
	workflowData, err = json.Marshal(d.WorkflowData)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: marshal workflow_data: %w", err)
	}
	template, err = json.Marshal(d.Template)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: marshal template: %w", err)
	}
	return workflowData, template, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDialog(row rowScanner, id string) (*models.Dialog, error) {
	d := &models.Dialog{}
	var workflowData, template []byte
	var status string
	err := row.Scan(&d.ID, &d.Description, &d.Goal, &status, &d.CurrentState,
		&workflowData, &template, &d.Error, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storage: dialog %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: scan dialog: %w", err)
	}
	d.Status = models.DialogStatus(status)
	if err := json.Unmarshal(workflowData, &d.WorkflowData); err != nil {
		return nil, fmt.Errorf("storage: unmarshal workflow_data: %w", err)
	}
	if err := json.Unmarshal(template, &d.Template); err != nil {
		return nil, fmt.Errorf("storage: unmarshal template: %w", err)
	}
	return d, nil
}

func scanDialogRows(rows *sql.Rows) ([]*models.Dialog, error) {
	var out []*models.Dialog
	for rows.Next() {
		d, err := scanDialog(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
