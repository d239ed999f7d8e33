package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/nlscribe/internal/audio"
	"github.com/foxseedlab/nlscribe/internal/config"
	"github.com/foxseedlab/nlscribe/internal/metrics"
	"github.com/foxseedlab/nlscribe/internal/notifier"
	"github.com/foxseedlab/nlscribe/internal/protocol"
	"github.com/foxseedlab/nlscribe/internal/repository"
	"github.com/foxseedlab/nlscribe/internal/transcriber"
	"github.com/foxseedlab/nlscribe/internal/webhook"
)

const (
	statsInterval    = 5 * time.Second
	finalizeTimeout  = 30 * time.Second
	minAudioInterval = 5 * time.Millisecond
)

var (
	ErrJobRunning    = errors.New("job is already running")
	ErrJobNotRunning = errors.New("job is not running")
)

// Transcriber is the part of transcriber.Session the manager drives.
type Transcriber interface {
	Start(ctx context.Context) error
	PushAudio(pcm []byte) error
	Stop(ctx context.Context) error
	Close() error
	Events() (<-chan protocol.Event, error)
	TaskID() string
	Err() error
	Done() <-chan struct{}
}

type TranscriberFactory func() Transcriber

type Job struct {
	Name   string
	Source audio.Source
}

type Manager struct {
	cfg            *config.Config
	repo           repository.Repository
	newTranscriber TranscriberFactory
	webhook        webhook.Sender
	notifier       notifier.Notifier
	metrics        metrics.Recorder
	loc            *time.Location
	interval       time.Duration
	now            func() time.Time

	mu   sync.Mutex
	jobs map[string]*runningJob
}

type runningJob struct {
	stopCh     chan struct{}
	stopOnce   sync.Once
	stopReason string
}

func (j *runningJob) requestStop(reason string) {
	j.stopOnce.Do(func() {
		j.stopReason = reason
		close(j.stopCh)
	})
}

func NewManager(cfg *config.Config, repo repository.Repository, newTranscriber TranscriberFactory, wh webhook.Sender, n notifier.Notifier, rec metrics.Recorder) *Manager {
	loc, err := time.LoadLocation(cfg.TranscriptTimezone)
	if err != nil {
		slog.Warn("invalid transcript timezone, falling back to UTC", "timezone", cfg.TranscriptTimezone, "error", err)
		loc = time.UTC
	}
	interval := cfg.ChunkDuration()
	if interval < minAudioInterval {
		interval = minAudioInterval
	}
	return &Manager{
		cfg:            cfg,
		repo:           repo,
		newTranscriber: newTranscriber,
		webhook:        wh,
		notifier:       n,
		metrics:        rec,
		loc:            loc,
		interval:       interval,
		now:            time.Now,
		jobs:           make(map[string]*runningJob),
	}
}

// Run streams one job's audio through a fresh transcriber session and blocks
// until the session is finalized. The returned error is nil only when the
// gateway completed the task.
func (m *Manager) Run(ctx context.Context, job Job) error {
	defer func() {
		if err := job.Source.Close(); err != nil {
			slog.Warn("failed to close audio source", "job", job.Name, "error", err)
		}
	}()

	rj := &runningJob{stopCh: make(chan struct{})}
	m.mu.Lock()
	if _, exists := m.jobs[job.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, job.Name)
	}
	m.jobs[job.Name] = rj
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.jobs, job.Name)
		m.mu.Unlock()
	}()

	if err := m.closeOrphan(ctx, job.Name); err != nil {
		return err
	}

	startedAt := m.now()
	created, err := m.repo.CreateSession(ctx, repository.CreateSessionInput{
		JobName:   job.Name,
		AppKey:    m.cfg.AppKey,
		StartedAt: startedAt,
	})
	if err != nil {
		slog.Error("failed to create session in repository", "error", err, "job", job.Name)
		return err
	}
	logger := slog.With("job", job.Name, "session_id", created.ID)
	logger.Info("created session")

	tr := m.newTranscriber()
	events, err := tr.Events()
	if err != nil {
		_ = tr.Close()
		return err
	}
	col := newCollector(m, created.ID, job.Name, logger)
	go col.run(events)

	m.metrics.SessionStarted()
	if err := tr.Start(ctx); err != nil {
		logger.Error("failed to start transcriber session", "error", err)
		_ = tr.Close()
		col.wait()
		_ = m.finalize(ctx, col, created, "", startedAt, stopReasonStartFailed, err)
		return err
	}
	taskID := tr.TaskID()
	logger = logger.With("task_id", taskID)
	col.setLogger(logger)
	logger.Info("transcriber session started")
	if err := m.repo.UpdateSessionTaskID(ctx, created.ID, taskID); err != nil {
		logger.Error("failed to store task id", "error", err)
	}
	m.postText(ctx, startTitle(job.Name), logger)

	reason := m.streamAudio(ctx, rj, tr, job.Source, logger)

	stopCtx := context.WithoutCancel(ctx)
	stopErr := tr.Stop(stopCtx)
	if stopErr != nil && !errors.Is(stopErr, transcriber.ErrInvalidState) {
		logger.Error("transcriber stop failed", "error", stopErr)
	}
	_ = tr.Close()
	col.wait()

	return m.finalize(stopCtx, col, created, taskID, startedAt, reason, tr.Err())
}

func (m *Manager) closeOrphan(ctx context.Context, jobName string) error {
	sess, err := m.repo.GetRunningSessionByJob(ctx, jobName)
	if err != nil {
		slog.Error("failed to query running session", "error", err, "job", jobName)
		return err
	}
	if sess == nil {
		return nil
	}
	slog.Warn("found orphan running session in repository; closing and continuing", "session_id", sess.ID, "job", jobName)
	if err := m.repo.UpdateSessionFinished(ctx, repository.FinishSessionInput{
		SessionID:     sess.ID,
		EndedAt:       m.now(),
		Status:        repository.SessionStatusFailed,
		StatusMessage: stopReasonDetail(stopReasonOrphaned),
		StopReason:    stopReasonOrphaned,
		SegmentCount:  sess.SegmentCount,
	}); err != nil {
		slog.Error("failed to close orphan session", "error", err, "session_id", sess.ID)
		return err
	}
	return nil
}

// streamAudio paces chunks at the chunk duration and returns why it stopped.
func (m *Manager) streamAudio(ctx context.Context, rj *runningJob, tr Transcriber, src audio.Source, logger *slog.Logger) string {
	chunker := audio.NewChunker(src, m.cfg.AudioChunkSamples)
	ticker := time.NewTicker(m.interval)
	statsTicker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	defer statsTicker.Stop()

	var sentChunks, emptyTicks int64
	push := func(chunk []byte) bool {
		if err := tr.PushAudio(chunk); err != nil {
			logger.Error("failed to push audio", "error", err, "pcm_bytes", len(chunk))
			return false
		}
		m.metrics.AudioSent(len(chunk))
		sentChunks++
		return true
	}
	flush := func() {
		if tail := chunker.Flush(); len(tail) > 0 {
			push(tail)
		}
	}

	logger.Info("audio loop started", "interval", m.interval, "chunk_bytes", chunker.ChunkBytes())
	for {
		select {
		case <-ctx.Done():
			flush()
			return stopReasonServerClosed
		case <-rj.stopCh:
			flush()
			return rj.stopReason
		case <-tr.Done():
			return stopReasonTranscriberFailed
		case <-statsTicker.C:
			logger.Info("audio pipeline stats", "sent_chunks", sentChunks, "empty_ticks", emptyTicks)
		case <-ticker.C:
			chunk, err := chunker.Next()
			if errors.Is(err, io.EOF) {
				flush()
				logger.Info("audio input exhausted", "sent_chunks", sentChunks)
				return stopReasonInputExhausted
			}
			if err != nil {
				logger.Error("failed to read audio", "error", err)
				return stopReasonAudioFailed
			}
			if chunk == nil {
				emptyTicks++
				continue
			}
			if !push(chunk) {
				return stopReasonTranscriberFailed
			}
		}
	}
}

func (m *Manager) finalize(ctx context.Context, col *collector, s *repository.Session, taskID string, startedAt time.Time, reason string, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	status := repository.SessionStatusFailed
	if col.completed() {
		status = repository.SessionStatusCompleted
	}
	statusMessage := col.statusMessage()
	if statusMessage == "" && cause != nil {
		statusMessage = cause.Error()
	}
	endedAt := m.now()
	segmentCount := col.segmentCount()

	logger := slog.With("job", s.JobName, "session_id", s.ID, "task_id", taskID)
	logger.Info("finalizing session", "status", status, "reason", reason, "segments", segmentCount, "parse_errors", col.parseErrorCount())
	m.metrics.SessionFinished(string(status))

	if err := m.repo.UpdateSessionFinished(ctx, repository.FinishSessionInput{
		SessionID:     s.ID,
		EndedAt:       endedAt,
		Status:        status,
		StatusMessage: statusMessage,
		StopReason:    reason,
		SegmentCount:  segmentCount,
	}); err != nil {
		logger.Error("failed to finish session", "error", err)
	}

	segments, err := m.repo.ListSegmentsBySessionID(ctx, s.ID)
	if err != nil {
		logger.Error("failed to list transcript segments", "error", err)
	}
	meta := transcriptMeta{
		SessionID:     s.ID,
		TaskID:        taskID,
		JobName:       s.JobName,
		StartedAt:     startedAt,
		EndedAt:       endedAt,
		Timezone:      m.cfg.TranscriptTimezone,
		Location:      m.loc,
		Status:        status,
		StatusMessage: statusMessage,
		StopReason:    reason,
	}
	if err := m.webhook.SendTranscript(ctx, buildTranscriptWebhookPayload(meta, segments)); err != nil {
		logger.Error("failed to send webhook transcript", "error", err)
	}

	completed := status == repository.SessionStatusCompleted
	content := finishTitle(s.JobName, completed) + "\n" + stopReasonDetail(reason)
	if len(segments) > 0 {
		content += "\n" + messageAttachmentTitle
		body := buildTranscriptText(meta, segments)
		if err := m.notifier.PostFile(ctx, content, transcriptFilename(s.JobName, s.ID), body); err != nil {
			logger.Error("failed to post transcript file", "error", err)
		}
	} else {
		m.postText(ctx, content, logger)
	}

	if completed {
		return nil
	}
	if cause == nil {
		cause = transcriber.ErrClosed
	}
	return fmt.Errorf("job %s failed (%s): %w", s.JobName, reason, cause)
}

func (m *Manager) postText(ctx context.Context, text string, logger *slog.Logger) {
	if err := m.notifier.PostText(ctx, text); err != nil {
		logger.Error("failed to post notifier message", "error", err)
	}
}

func (m *Manager) StopJob(name, reason string) error {
	m.mu.Lock()
	rj, ok := m.jobs[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, name)
	}
	rj.requestStop(reason)
	return nil
}

func (m *Manager) StopAll(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rj := range m.jobs {
		rj.requestStop(reason)
	}
}

func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
