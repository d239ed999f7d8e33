package webhook

import "context"

const SchemaVersion = "1"

type TranscriptWebhookSegment struct {
	Index       int     `json:"index"`
	Content     string  `json:"content"`
	SpokenAt    string  `json:"spoken_at"`
	BeginTimeMs int64   `json:"begin_time_ms"`
	EndTimeMs   int64   `json:"end_time_ms"`
	Confidence  float64 `json:"confidence"`
}

type TranscriptWebhookPayload struct {
	SchemaVersion      string                     `json:"schema_version"`
	SessionID          string                     `json:"session_id"`
	TaskID             string                     `json:"task_id"`
	JobName            string                     `json:"job_name"`
	StartAt            string                     `json:"start_at"`
	EndAt              string                     `json:"end_at"`
	Timezone           string                     `json:"timezone"`
	DurationSeconds    int64                      `json:"duration_seconds"`
	Status             string                     `json:"status"`
	StatusMessage      string                     `json:"status_message"`
	SegmentCount       int                        `json:"segment_count"`
	TranscriptSegments []TranscriptWebhookSegment `json:"transcript_segments"`
	Transcript         string                     `json:"transcript"`
}

type Sender interface {
	SendTranscript(ctx context.Context, payload TranscriptWebhookPayload) error
}
