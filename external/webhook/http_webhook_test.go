package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foxseedlab/nlscribe/internal/webhook"
)

func TestSendTranscript_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("", nil)
	if err := sender.SendTranscript(context.Background(), webhook.TranscriptWebhookPayload{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSendTranscript_Success(t *testing.T) {
	var got map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, server.Client())
	err := sender.SendTranscript(context.Background(), webhook.TranscriptWebhookPayload{
		SessionID:    "s-1",
		TaskID:       "0123456789abcdef0123456789abcdef",
		JobName:      "lecture",
		Status:       "completed",
		SegmentCount: 1,
		TranscriptSegments: []webhook.TranscriptWebhookSegment{
			{Index: 0, Content: "hello world", BeginTimeMs: 120, EndTimeMs: 980, Confidence: 0.9},
		},
		Transcript: "[00:00:00] hello world\n",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got["schema_version"] != webhook.SchemaVersion {
		t.Fatalf("schema version not defaulted: %v", got["schema_version"])
	}
	if got["task_id"] != "0123456789abcdef0123456789abcdef" || got["job_name"] != "lecture" {
		t.Fatalf("unexpected payload: %v", got)
	}
	segments, ok := got["transcript_segments"].([]any)
	if !ok || len(segments) != 1 {
		t.Fatalf("unexpected segments: %v", got["transcript_segments"])
	}
	seg := segments[0].(map[string]any)
	if seg["content"] != "hello world" || seg["begin_time_ms"].(float64) != 120 {
		t.Fatalf("unexpected segment: %v", seg)
	}
}

func TestSendTranscript_EmptySegmentsEncodeAsArray(t *testing.T) {
	var raw map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, nil)
	if err := sender.SendTranscript(context.Background(), webhook.TranscriptWebhookPayload{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if string(raw["transcript_segments"]) != "[]" {
		t.Fatalf("expected empty array, got %s", raw["transcript_segments"])
	}
}

func TestSendTranscript_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, nil)
	if err := sender.SendTranscript(context.Background(), webhook.TranscriptWebhookPayload{}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
