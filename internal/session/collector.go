package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/nlscribe/internal/protocol"
	"github.com/foxseedlab/nlscribe/internal/repository"
)

// collector consumes one session's event stream, storing finished sentences
// and mirroring them to the notifier.
type collector struct {
	manager   *Manager
	sessionID string
	job       string
	origin    time.Time
	done      chan struct{}

	mu          sync.Mutex
	logger      *slog.Logger
	nextIndex   int
	parseErrors int
	final       *protocol.Event
}

func newCollector(m *Manager, sessionID, job string, logger *slog.Logger) *collector {
	return &collector{
		manager:   m,
		sessionID: sessionID,
		job:       job,
		origin:    m.now(),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

func (c *collector) run(events <-chan protocol.Event) {
	defer close(c.done)
	for ev := range events {
		c.handle(ev)
	}
}

func (c *collector) wait() {
	<-c.done
}

func (c *collector) setLogger(l *slog.Logger) {
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

func (c *collector) log() *slog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

func (c *collector) handle(ev protocol.Event) {
	c.manager.metrics.EventReceived(ev.Kind.String())
	switch ev.Kind {
	case protocol.KindStarted:
		c.mu.Lock()
		c.origin = c.manager.now()
		c.mu.Unlock()
	case protocol.KindPartialResult:
		c.log().Debug("partial result", "index", ev.Index, "text", ev.Text)
	case protocol.KindSentenceEnd:
		c.storeSentence(ev)
	case protocol.KindParseError:
		c.mu.Lock()
		c.parseErrors++
		c.mu.Unlock()
		c.log().Warn("unparsable gateway message", "error", ev.Err, "raw_bytes", len(ev.Raw))
	case protocol.KindUnknown:
		c.log().Debug("ignoring unknown gateway event", "name", ev.Name)
	case protocol.KindCompleted, protocol.KindFailed:
		final := ev
		c.mu.Lock()
		c.final = &final
		c.mu.Unlock()
	}
}

func (c *collector) storeSentence(ev protocol.Event) {
	text := ev.Text
	if c.manager.cfg.TranscriptFilter {
		text = FilterTranscript(text)
	}
	if text == "" {
		return
	}
	c.mu.Lock()
	idx := c.nextIndex
	c.nextIndex++
	origin := c.origin
	c.mu.Unlock()

	ctx := context.Background()
	logger := c.log()
	err := c.manager.repo.InsertSegment(ctx, repository.InsertSegmentInput{
		SessionID:    c.sessionID,
		Content:      text,
		SegmentIndex: idx,
		BeginTimeMs:  int64(ev.BeginTime),
		EndTimeMs:    int64(ev.Time),
		Confidence:   ev.Confidence,
		SpokenAt:     origin.Add(time.Duration(ev.BeginTime) * time.Millisecond),
	})
	if err != nil {
		logger.Error("failed to insert segment", "error", err, "index", idx)
		return
	}
	logger.Info("sentence recognized", "index", idx, "begin_time_ms", ev.BeginTime, "end_time_ms", ev.Time)
	c.manager.postText(ctx, segmentLine(int64(ev.BeginTime), text), logger)
}

func (c *collector) completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.final != nil && c.final.Kind == protocol.KindCompleted
}

func (c *collector) statusMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final == nil {
		return ""
	}
	return c.final.StatusMessage
}

func (c *collector) segmentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextIndex
}

func (c *collector) parseErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parseErrors
}
