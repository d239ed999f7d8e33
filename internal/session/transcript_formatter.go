package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/nlscribe/internal/repository"
	"github.com/foxseedlab/nlscribe/internal/webhook"
)

const transcriptTimeLayout = "2006-01-02 15:04:05"

type transcriptMeta struct {
	SessionID     string
	TaskID        string
	JobName       string
	StartedAt     time.Time
	EndedAt       time.Time
	Timezone      string
	Location      *time.Location
	Status        repository.SessionStatus
	StatusMessage string
	StopReason    string
}

func buildTranscriptText(meta transcriptMeta, segments []repository.TranscriptSegment) []byte {
	loc := safeLocation(meta.Location)
	startText := meta.StartedAt.In(loc).Format(transcriptTimeLayout)
	endText := meta.EndedAt.In(loc).Format(transcriptTimeLayout)

	lines := []string{
		fmt.Sprintf("Job: %s", meta.JobName),
		fmt.Sprintf("Task: %s", meta.TaskID),
		fmt.Sprintf("Period: %s ~ %s (%s)", startText, endText, meta.Timezone),
		fmt.Sprintf("Status: %s", meta.Status),
		fmt.Sprintf("Stop reason: %s", stopReasonDetail(meta.StopReason)),
		"",
	}
	for _, seg := range segments {
		lines = append(lines, segmentLine(seg.BeginTimeMs, seg.Content))
	}
	return []byte(strings.Join(lines, "\n"))
}

func segmentLine(beginTimeMs int64, content string) string {
	return fmt.Sprintf("%s %s", formatElapsedHMS(time.Duration(beginTimeMs)*time.Millisecond), content)
}

func buildTranscriptWebhookPayload(meta transcriptMeta, segments []repository.TranscriptSegment) webhook.TranscriptWebhookPayload {
	loc := safeLocation(meta.Location)
	transcriptLines := make([]string, 0, len(segments))
	out := make([]webhook.TranscriptWebhookSegment, 0, len(segments))
	for _, seg := range segments {
		transcriptLines = append(transcriptLines, seg.Content)
		out = append(out, webhook.TranscriptWebhookSegment{
			Index:       seg.SegmentIndex,
			Content:     seg.Content,
			SpokenAt:    seg.SpokenAt.In(loc).Format(time.RFC3339),
			BeginTimeMs: seg.BeginTimeMs,
			EndTimeMs:   seg.EndTimeMs,
			Confidence:  seg.Confidence,
		})
	}

	durationSeconds := int64(meta.EndedAt.Sub(meta.StartedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	return webhook.TranscriptWebhookPayload{
		SchemaVersion:      webhook.SchemaVersion,
		SessionID:          meta.SessionID,
		TaskID:             meta.TaskID,
		JobName:            meta.JobName,
		StartAt:            meta.StartedAt.In(loc).Format(time.RFC3339),
		EndAt:              meta.EndedAt.In(loc).Format(time.RFC3339),
		Timezone:           meta.Timezone,
		DurationSeconds:    durationSeconds,
		Status:             string(meta.Status),
		StatusMessage:      meta.StatusMessage,
		SegmentCount:       len(segments),
		TranscriptSegments: out,
		Transcript:         strings.Join(transcriptLines, "\n"),
	}
}

func transcriptFilename(job, sessionID string) string {
	return fmt.Sprintf("transcript-%s-%s.txt", job, sessionID)
}

func formatElapsedHMS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
