package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxseedlab/nlscribe/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, job_name, task_id, app_key, started_at, ended_at, status, status_message, stop_reason, segment_count`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	var status string
	err := row.Scan(&s.ID, &s.JobName, &s.TaskID, &s.AppKey, &s.StartedAt, &s.EndedAt,
		&status, &s.StatusMessage, &s.StopReason, &s.SegmentCount)
	if err != nil {
		return nil, err
	}
	s.Status = repository.SessionStatus(status)
	return &s, nil
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO transcription_sessions (job_name, app_key, started_at, status)
		 VALUES ($1, $2, $3, 'running')
		 RETURNING `+sessionColumns,
		input.JobName, input.AppKey, input.StartedAt)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) UpdateSessionTaskID(ctx context.Context, sessionID, taskID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transcription_sessions SET task_id = $2 WHERE id = $1`,
		sessionID, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrSessionNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateSessionFinished(ctx context.Context, input repository.FinishSessionInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transcription_sessions
		 SET status = $2, ended_at = $3, status_message = $4, stop_reason = $5, segment_count = $6
		 WHERE id = $1`,
		input.SessionID, string(input.Status), input.EndedAt, input.StatusMessage, input.StopReason, input.SegmentCount)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrSessionNotFound
	}
	return nil
}

func (r *PostgresRepository) GetRunningSessionByJob(ctx context.Context, jobName string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM transcription_sessions WHERE job_name = $1 AND status = 'running'
		 ORDER BY started_at DESC LIMIT 1`,
		jobName)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) InsertSegment(ctx context.Context, input repository.InsertSegmentInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcription_segments
		 (session_id, content, segment_index, begin_time_ms, end_time_ms, confidence, spoken_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		input.SessionID, input.Content, input.SegmentIndex, input.BeginTimeMs, input.EndTimeMs, input.Confidence, input.SpokenAt)
	return err
}

func (r *PostgresRepository) ListSegmentsBySessionID(ctx context.Context, sessionID string) ([]repository.TranscriptSegment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, content, segment_index, begin_time_ms, end_time_ms, confidence, spoken_at, created_at
		 FROM transcription_segments WHERE session_id = $1 ORDER BY segment_index ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.TranscriptSegment
	for rows.Next() {
		var seg repository.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.Content, &seg.SegmentIndex,
			&seg.BeginTimeMs, &seg.EndTimeMs, &seg.Confidence, &seg.SpokenAt, &seg.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, seg)
	}
	return list, rows.Err()
}
