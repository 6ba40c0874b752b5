package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/phrazzld/genqueue/internal/store"
)

// JobStore implements store.JobStore on a SQL database. Every transition is
// a single conditional UPDATE, so the database's row locking makes it atomic.
type JobStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates a JobStore over db using dialect's SQL.
func NewJobStore(db *sql.DB, dialect Dialect) *JobStore {
	return &JobStore{db: db, dialect: dialect, now: time.Now}
}

// WithClock returns a copy of s that reads the current time from now.
func (s *JobStore) WithClock(now func() time.Time) *JobStore {
	c := *s
	c.now = now
	return &c
}

func (s *JobStore) q(query string) string {
	return s.dialect.rebind(query)
}

// Insert implements store.JobStore.
func (s *JobStore) Insert(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	if err := job.Validate(); err != nil {
		return store.NewStoreError("job", "insert", "invalid job", err)
	}
	if job.Status != domain.JobStatusPending {
		return store.NewStoreError("job", "insert", "new jobs must be PENDING", domain.ErrInvalidJobStatus)
	}

	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	query := s.q(`
		INSERT INTO jobs (id, type, params, owner_id, status, attempt, timeout_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)

	_, err := s.db.ExecContext(ctx, query,
		job.ID.String(),
		string(job.Type),
		string(job.Params),
		job.OwnerID,
		string(job.Status),
		job.Attempt,
		job.Timeout.Milliseconds(),
		s.dialect.timeArg(createdAt),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrDuplicateJob
		}
		log.Error("failed to insert job",
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", string(job.Type)),
			slog.String("error", err.Error()))
		return store.NewStoreError("job", "insert", "failed to insert job", MapError(err))
	}

	return nil
}

// ClaimNextPending implements store.JobStore.
func (s *JobStore) ClaimNextPending(ctx context.Context) (*domain.Job, error) {
	log := logger.FromContext(ctx)

	query := s.q(fmt.Sprintf(`
		UPDATE jobs
		SET status = 'PROCESSING', started_at = $1
		WHERE status = 'PENDING' AND id = (
			SELECT id FROM jobs
			WHERE status = 'PENDING'
			ORDER BY created_at, id
			LIMIT 1
			%s
		)
		RETURNING %s
	`, s.dialect.claimLock, jobColumns))

	job, err := scanJob(s.db.QueryRowContext(ctx, query, s.dialect.timeArg(s.now())))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoPendingJobs
		}
		log.Error("failed to claim pending job", slog.String("error", err.Error()))
		return nil, store.NewStoreError("job", "claim", "failed to claim pending job", MapError(err))
	}

	return job, nil
}

// UpdateProgress implements store.JobStore.
func (s *JobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress string, attempt int) error {
	query := s.q(`
		UPDATE jobs
		SET progress = $1, attempt = $2
		WHERE id = $3 AND status = 'PROCESSING'
	`)

	result, err := s.db.ExecContext(ctx, query, progress, attempt, id.String())
	if err != nil {
		logger.FromContext(ctx).Error("failed to update job progress",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("job", "update progress", "failed to update job", MapError(err))
	}

	return s.checkTransition(ctx, s.db, result, id, "update progress")
}

// Complete implements store.JobStore.
func (s *JobStore) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	query := s.q(`
		UPDATE jobs
		SET status = 'COMPLETED', result = $1, completed_at = $2
		WHERE id = $3 AND status = 'PROCESSING'
	`)

	res, err := s.db.ExecContext(ctx, query, nullableJSON(result), s.dialect.timeArg(s.now()), id.String())
	if err != nil {
		logger.FromContext(ctx).Error("failed to complete job",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("job", "complete", "failed to complete job", MapError(err))
	}

	return s.checkTransition(ctx, s.db, res, id, "complete")
}

// Fail implements store.JobStore.
func (s *JobStore) Fail(ctx context.Context, id uuid.UUID, jobErr *domain.JobError) error {
	query := s.q(`
		UPDATE jobs
		SET status = 'FAILED', error_code = $1, error_message = $2, completed_at = $3
		WHERE id = $4 AND status IN ('PENDING', 'PROCESSING')
	`)

	res, err := s.db.ExecContext(ctx, query,
		string(jobErr.Code), jobErr.Message, s.dialect.timeArg(s.now()), id.String())
	if err != nil {
		logger.FromContext(ctx).Error("failed to fail job",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("job", "fail", "failed to fail job", MapError(err))
	}

	return s.checkTransition(ctx, s.db, res, id, "fail")
}

// checkTransition turns a guarded UPDATE that touched no rows into either
// ErrJobNotFound or a stale write, depending on whether the job exists.
func (s *JobStore) checkTransition(ctx context.Context, db store.Queryer, res sql.Result, id uuid.UUID, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return store.NewStoreError("job", op, "failed to get rows affected", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = db.QueryRowContext(ctx, s.q(`SELECT status FROM jobs WHERE id = $1`), id.String()).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrJobNotFound
	}
	if err != nil {
		return store.NewStoreError("job", op, "failed to read job status", MapError(err))
	}
	return store.NewStoreError("job", op, "job is "+status, store.ErrStaleWrite)
}

// Get implements store.JobStore.
func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := s.q(fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns))

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		logger.FromContext(ctx).Error("failed to get job",
			slog.String("job_id", id.String()),
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("job", "get", "failed to get job", MapError(err))
	}
	return job, nil
}

// EvictOlderThan implements store.JobStore.
func (s *JobStore) EvictOlderThan(ctx context.Context, age time.Duration) (int, error) {
	query := s.q(`
		DELETE FROM jobs
		WHERE status IN ('COMPLETED', 'FAILED') AND completed_at <= $1
	`)

	res, err := s.db.ExecContext(ctx, query, s.dialect.timeArg(s.now().Add(-age)))
	if err != nil {
		logger.FromContext(ctx).Error("failed to evict jobs", slog.String("error", err.Error()))
		return 0, store.NewStoreError("job", "evict", "failed to evict jobs", MapError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError("job", "evict", "failed to get rows affected", err)
	}
	return int(n), nil
}

// CountByStatus implements store.JobStore. Both aggregates are read in one
// transaction so they describe the same set of jobs.
func (s *JobStore) CountByStatus(ctx context.Context) (store.JobCounts, error) {
	var counts store.JobCounts

	err := store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var status string
			var n int
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			switch domain.JobStatus(status) {
			case domain.JobStatusPending:
				counts.Pending = n
			case domain.JobStatusProcessing:
				counts.Processing = n
			case domain.JobStatusCompleted:
				counts.Completed = n
			case domain.JobStatusFailed:
				counts.Failed = n
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		var total int64
		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT COUNT(*), %s
			FROM jobs
			WHERE status IN ('COMPLETED', 'FAILED')
				AND started_at IS NOT NULL AND completed_at IS NOT NULL
		`, s.dialect.runningTimeSum)).Scan(&counts.StartedTerminal, &total)
		if err != nil {
			return err
		}
		counts.TotalRunningTime = time.Duration(total) * s.dialect.runningTimeUnit
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to count jobs", slog.String("error", err.Error()))
		return store.JobCounts{}, store.NewStoreError("job", "count", "failed to count jobs", MapError(err))
	}

	return counts, nil
}

// FailOrphaned implements store.JobStore.
func (s *JobStore) FailOrphaned(ctx context.Context, jobErr *domain.JobError) (int, error) {
	query := s.q(`
		UPDATE jobs
		SET status = 'FAILED', error_code = $1, error_message = $2, completed_at = $3
		WHERE status = 'PROCESSING'
	`)

	res, err := s.db.ExecContext(ctx, query, string(jobErr.Code), jobErr.Message, s.dialect.timeArg(s.now()))
	if err != nil {
		logger.FromContext(ctx).Error("failed to fail orphaned jobs", slog.String("error", err.Error()))
		return 0, store.NewStoreError("job", "fail orphaned", "failed to update jobs", MapError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError("job", "fail orphaned", "failed to get rows affected", err)
	}
	return int(n), nil
}
