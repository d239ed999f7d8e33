package repository

import (
	"context"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

type CreateSessionInput struct {
	JobName   string
	AppKey    string
	StartedAt time.Time
}

type FinishSessionInput struct {
	SessionID     string
	EndedAt       time.Time
	Status        SessionStatus
	StatusMessage string
	StopReason    string
	SegmentCount  int
}

type InsertSegmentInput struct {
	SessionID    string
	Content      string
	SegmentIndex int
	BeginTimeMs  int64
	EndTimeMs    int64
	Confidence   float64
	SpokenAt     time.Time
}

type SessionRepository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) (*Session, error)
	UpdateSessionTaskID(ctx context.Context, sessionID, taskID string) error
	UpdateSessionFinished(ctx context.Context, input FinishSessionInput) error
	// GetRunningSessionByJob returns nil, nil when no session is running.
	GetRunningSessionByJob(ctx context.Context, jobName string) (*Session, error)
}

type TranscriptRepository interface {
	InsertSegment(ctx context.Context, input InsertSegmentInput) error
	ListSegmentsBySessionID(ctx context.Context, sessionID string) ([]TranscriptSegment, error)
}

type Repository interface {
	SessionRepository
	TranscriptRepository
}
