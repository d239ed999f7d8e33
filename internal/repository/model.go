package repository

import "time"

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

type Session struct {
	ID            string
	JobName       string
	TaskID        string
	AppKey        string
	StartedAt     time.Time
	EndedAt       *time.Time
	Status        SessionStatus
	StatusMessage string
	StopReason    string
	SegmentCount  int
}

// TranscriptSegment is one finished sentence. Begin and end offsets are
// milliseconds from the start of the audio stream.
type TranscriptSegment struct {
	ID           string
	SessionID    string
	Content      string
	SegmentIndex int
	BeginTimeMs  int64
	EndTimeMs    int64
	Confidence   float64
	SpokenAt     time.Time
	CreatedAt    time.Time
}
