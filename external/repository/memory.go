package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/nlscribe/internal/repository"
	"github.com/google/uuid"
)

// MemoryRepository keeps sessions in process memory. It is used when no
// database is configured and in tests.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*repository.Session
	segments map[string][]repository.TranscriptSegment
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*repository.Session),
		segments: make(map[string][]repository.TranscriptSegment),
		now:      time.Now,
	}
}

func (r *MemoryRepository) CreateSession(_ context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &repository.Session{
		ID:        uuid.NewString(),
		JobName:   input.JobName,
		AppKey:    input.AppKey,
		StartedAt: input.StartedAt,
		Status:    repository.SessionStatusRunning,
	}
	r.sessions[s.ID] = s
	out := *s
	return &out, nil
}

func (r *MemoryRepository) UpdateSessionTaskID(_ context.Context, sessionID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.TaskID = taskID
	return nil
}

func (r *MemoryRepository) UpdateSessionFinished(_ context.Context, input repository.FinishSessionInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[input.SessionID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	endedAt := input.EndedAt
	s.EndedAt = &endedAt
	s.Status = input.Status
	s.StatusMessage = input.StatusMessage
	s.StopReason = input.StopReason
	s.SegmentCount = input.SegmentCount
	return nil
}

func (r *MemoryRepository) GetRunningSessionByJob(_ context.Context, jobName string) (*repository.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *repository.Session
	for _, s := range r.sessions {
		if s.JobName != jobName || s.Status != repository.SessionStatusRunning {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (r *MemoryRepository) InsertSegment(_ context.Context, input repository.InsertSegmentInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[input.SessionID]; !ok {
		return repository.ErrSessionNotFound
	}
	for _, seg := range r.segments[input.SessionID] {
		if seg.SegmentIndex == input.SegmentIndex {
			return fmt.Errorf("segment %d already stored for session %s", input.SegmentIndex, input.SessionID)
		}
	}
	r.segments[input.SessionID] = append(r.segments[input.SessionID], repository.TranscriptSegment{
		ID:           uuid.NewString(),
		SessionID:    input.SessionID,
		Content:      input.Content,
		SegmentIndex: input.SegmentIndex,
		BeginTimeMs:  input.BeginTimeMs,
		EndTimeMs:    input.EndTimeMs,
		Confidence:   input.Confidence,
		SpokenAt:     input.SpokenAt,
		CreatedAt:    r.now(),
	})
	return nil
}

func (r *MemoryRepository) ListSegmentsBySessionID(_ context.Context, sessionID string) ([]repository.TranscriptSegment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append([]repository.TranscriptSegment(nil), r.segments[sessionID]...)
	sort.Slice(list, func(i, j int) bool { return list[i].SegmentIndex < list[j].SegmentIndex })
	return list, nil
}

// Session returns a copy of the stored session.
func (r *MemoryRepository) Session(id string) (repository.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return repository.Session{}, false
	}
	return *s, true
}
