package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/domain"
)

// jobColumns is the column list every job query selects, in scan order.
const jobColumns = `id, type, params, owner_id, status, progress, result,
	error_code, error_message, attempt, timeout_ms, created_at, started_at, completed_at`

// dbTime scans a timestamp stored either natively or as unix nanoseconds.
type dbTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (t *dbTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
	case int64:
		t.Time, t.Valid = time.Unix(0, v).UTC(), true
	default:
		return fmt.Errorf("cannot scan %T into timestamp", value)
	}
	return nil
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                  domain.Job
		id                   uuid.UUID
		jobType, status      string
		params               string
		result               sql.NullString
		errCode, errMessage  sql.NullString
		timeoutMS            int64
		createdAt            dbTime
		startedAt, completed dbTime
	)

	err := row.Scan(
		&id, &jobType, &params, &job.OwnerID, &status, &job.Progress, &result,
		&errCode, &errMessage, &job.Attempt, &timeoutMS, &createdAt, &startedAt, &completed,
	)
	if err != nil {
		return nil, err
	}

	job.ID = id
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.Params = json.RawMessage(params)
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	if errCode.Valid {
		job.Error = domain.NewJobError(domain.ErrorCode(errCode.String), errMessage.String)
	}
	job.Timeout = time.Duration(timeoutMS) * time.Millisecond
	job.CreatedAt = createdAt.Time
	job.StartedAt = startedAt.ptr()
	job.CompletedAt = completed.ptr()

	return &job, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
