package jobs

// CockroachStore persists the job queue in a `jobs` table:
//
//	CREATE TABLE jobs (
//	    id             TEXT PRIMARY KEY,
//	    type           TEXT NOT NULL,
//	    payload        JSONB NOT NULL,
//	    status         TEXT NOT NULL,
//	    attempt        INT NOT NULL DEFAULT 0,
//	    max_attempts   INT NOT NULL DEFAULT 1,
//	    error          TEXT NOT NULL DEFAULT '',
//	    worker_id      TEXT,
//	    lease_until    TIMESTAMPTZ,
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    updated_at     TIMESTAMPTZ NOT NULL
//	);
//
// Dequeue is the one operation that matters for correctness: it must hand
// each due job to exactly one worker. CockroachDB (and Postgres) support
// `SELECT ... FOR UPDATE SKIP LOCKED`, which lets every worker run the same
// query concurrently and each get a disjoint set of rows with no
// application-level locking.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// CockroachStore implements Store against CockroachDB/Postgres.
type CockroachStore struct {
	db *sql.DB

	stmtEnqueue  *sql.Stmt
	stmtGet      *sql.Stmt
	stmtComplete *sql.Stmt
	stmtFail     *sql.Stmt
}

// NewCockroachStore opens a connection pool against dsn and prepares the
// store's hot-path statements.
func NewCockroachStore(dsn string) (*CockroachStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobs: open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobs: ping database: %w", err)
	}

	s := &CockroachStore{db: db}
	if err := s.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *CockroachStore) prepareStatements() error {
	var err error
	if s.stmtEnqueue, err = s.db.Prepare(`
		INSERT INTO jobs (id, type, payload, status, attempt, max_attempts, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, '', $6, $6)
	`); err != nil {
		return fmt.Errorf("jobs: prepare enqueue: %w", err)
	}
	if s.stmtGet, err = s.db.Prepare(`
		SELECT id, type, payload, status, attempt, max_attempts, error, worker_id, lease_until, created_at, updated_at
		FROM jobs WHERE id = $1
	`); err != nil {
		return fmt.Errorf("jobs: prepare get: %w", err)
	}
	if s.stmtComplete, err = s.db.Prepare(`
		UPDATE jobs SET status = $1, lease_until = NULL, updated_at = $2 WHERE id = $3
	`); err != nil {
		return fmt.Errorf("jobs: prepare complete: %w", err)
	}
	if s.stmtFail, err = s.db.Prepare(`
		UPDATE jobs SET status = $1, error = $2, worker_id = $3, lease_until = $4, updated_at = $5 WHERE id = $6
	`); err != nil {
		return fmt.Errorf("jobs: prepare fail: %w", err)
	}
	return nil
}

// Close drains every prepared statement and closes the pool.
func (s *CockroachStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.stmtEnqueue, s.stmtGet, s.stmtComplete, s.stmtFail} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

func (s *CockroachStore) Enqueue(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("jobs: job id is required")
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	now := time.Now()
	_, err := s.stmtEnqueue.ExecContext(ctx, job.ID, string(job.Type), []byte(job.Payload), string(StatusQueued), maxAttempts, now)
	if err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", job.ID, err)
	}
	job.Status = StatusQueued
	job.MaxAttempts = maxAttempts
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func (s *CockroachStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.stmtGet.QueryRowContext(ctx, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("jobs: job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: get %s: %w", id, err)
	}
	return job, nil
}

// Dequeue claims the oldest due job inside its own transaction, using
// FOR UPDATE SKIP LOCKED so concurrent callers never collide on the same
// row and never block waiting on one another.
func (s *CockroachStore) Dequeue(ctx context.Context, workerID string, leaseDuration time.Duration) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("jobs: begin dequeue: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	row := tx.QueryRowContext(ctx, `
		SELECT id, type, payload, status, attempt, max_attempts, error, worker_id, lease_until, created_at, updated_at
		FROM jobs
		WHERE status = $1 OR (status = $2 AND lease_until < $3)
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, string(StatusQueued), string(StatusRunning), now)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: dequeue scan: %w", err)
	}

	lease := now.Add(leaseDuration)
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET status = $1, worker_id = $2, lease_until = $3, attempt = attempt + 1, updated_at = $4
		WHERE id = $5
	`, string(StatusRunning), workerID, lease, now, job.ID)
	if err != nil {
		return nil, fmt.Errorf("jobs: dequeue claim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("jobs: dequeue commit: %w", err)
	}

	job.Status = StatusRunning
	job.WorkerID = workerID
	job.LeaseUntil = &lease
	job.Attempt++
	job.UpdatedAt = now
	return job, nil
}

func (s *CockroachStore) Complete(ctx context.Context, jobID string) error {
	res, err := s.stmtComplete.ExecContext(ctx, string(StatusSucceeded), time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("jobs: complete %s: %w", jobID, err)
	}
	return requireRowsAffected(res, jobID)
}

func (s *CockroachStore) Fail(ctx context.Context, jobID string, errMsg string, retry bool) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}

	status := StatusFailed
	var workerID any
	var leaseUntil any
	if retry && job.Attempt < job.MaxAttempts {
		status = StatusQueued
	} else {
		workerID = nil
		leaseUntil = nil
	}

	res, execErr := s.stmtFail.ExecContext(ctx, string(status), errMsg, workerID, leaseUntil, time.Now(), jobID)
	if execErr != nil {
		return fmt.Errorf("jobs: fail %s: %w", jobID, execErr)
	}
	return requireRowsAffected(res, jobID)
}

func requireRowsAffected(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("jobs: job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var typ, status string
	var payload []byte
	var workerID sql.NullString
	var leaseUntil sql.NullTime

	if err := row.Scan(&j.ID, &typ, &payload, &status, &j.Attempt, &j.MaxAttempts, &j.Error,
		&workerID, &leaseUntil, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Type = Type(typ)
	j.Status = Status(status)
	j.Payload = json.RawMessage(payload)
	if workerID.Valid {
		j.WorkerID = workerID.String
	}
	if leaseUntil.Valid {
		t := leaseUntil.Time
		j.LeaseUntil = &t
	}
	return &j, nil
}
