package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

const (
	testMessageID = "0123456789abcdef0123456789abcdef"
	testTaskID    = "fedcba9876543210fedcba9876543210"
)

func TestEncodeControl_StartTranscriptionMatchesWireSchema(t *testing.T) {
	f, err := EncodeControl(NameStartTranscription, ControlHeader{
		MessageID: testMessageID,
		TaskID:    testTaskID,
		AppKey:    "app-key",
	}, StartPayload{
		Format:                      AudioFormatPCM,
		SampleRate:                  16000,
		EnableIntermediateResult:    true,
		EnablePunctuationPrediction: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Type != TextFrame {
		t.Fatalf("expected text frame, got %s", f.Type)
	}
	want := `{"header":{"message_id":"0123456789abcdef0123456789abcdef","task_id":"fedcba9876543210fedcba9876543210","namespace":"SpeechTranscriber","name":"StartTranscription","appkey":"app-key"},` +
		`"payload":{"format":"pcm","sample_rate":16000,"enable_intermediate_result":true,"enable_punctuation_prediction":true,"enable_inverse_text_normalization":false}}`
	if string(f.Data) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", f.Data, want)
	}
}

func TestEncodeControl_StopTranscriptionOmitsPayload(t *testing.T) {
	f, err := EncodeControl(NameStopTranscription, ControlHeader{
		MessageID: testMessageID,
		TaskID:    testTaskID,
		AppKey:    "app-key",
		Namespace: "ignored",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(f.Data, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if _, ok := decoded["payload"]; ok {
		t.Fatalf("stop message must not carry a payload: %s", f.Data)
	}
	if !bytes.Contains(f.Data, []byte(`"namespace":"SpeechTranscriber"`)) {
		t.Fatalf("namespace not forced: %s", f.Data)
	}
}

func TestEncodeControl_RejectsMalformedIDs(t *testing.T) {
	cases := []ControlHeader{
		{MessageID: "short", TaskID: testTaskID},
		{MessageID: testMessageID, TaskID: ""},
		{MessageID: "0123456789ABCDEF0123456789ABCDEF", TaskID: testTaskID},
	}
	for _, h := range cases {
		if _, err := EncodeControl(NameStopTranscription, h, nil); err == nil {
			t.Fatalf("expected error for header %+v", h)
		}
	}
	if _, err := EncodeControl("", ControlHeader{MessageID: testMessageID, TaskID: testTaskID}, nil); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestEncodeAudio_PassesBytesThrough(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f}
	f := EncodeAudio(pcm)
	if f.Type != BinaryFrame {
		t.Fatalf("expected binary frame, got %s", f.Type)
	}
	if !bytes.Equal(f.Data, pcm) {
		t.Fatalf("audio bytes altered: %v", f.Data)
	}
}

func TestDecode_DispatchesByHeaderName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind EventKind
		text string
	}{
		{
			name: "started",
			raw:  `{"header":{"name":"TranscriptionStarted","status":20000000,"task_id":"` + testTaskID + `","status_text":"Gateway:SUCCESS:Success."},"payload":{"session_id":"s"}}`,
			kind: KindStarted,
		},
		{
			name: "sentence begin",
			raw:  `{"header":{"name":"SentenceBegin","status":20000000},"payload":{"index":1,"time":320}}`,
			kind: KindSentenceBegin,
		},
		{
			name: "partial result",
			raw:  `{"header":{"name":"TranscriptionResultChanged","status":20000000},"payload":{"index":1,"time":1200,"result":"hel"}}`,
			kind: KindPartialResult,
			text: "hel",
		},
		{
			name: "sentence end",
			raw:  `{"header":{"name":"SentenceEnd","status":20000000},"payload":{"index":1,"time":1820,"begin_time":320,"result":"hello ","confidence":0.92,"words":[{"text":"hello","startTime":320,"endTime":900}]}}`,
			kind: KindSentenceEnd,
			text: "hello ",
		},
		{
			name: "completed",
			raw:  `{"header":{"name":"TranscriptionCompleted","status":20000000}}`,
			kind: KindCompleted,
		},
		{
			name: "task failed",
			raw:  `{"header":{"name":"TaskFailed","status":40000001,"status_message":"Gateway:ACCESS_DENIED:The token is invalid!"}}`,
			kind: KindFailed,
		},
		{
			name: "unknown",
			raw:  `{"header":{"name":"SomethingNew","status":20000000},"payload":{"x":1}}`,
			kind: KindUnknown,
		},
		{
			name: "malformed",
			raw:  `{"header":`,
			kind: KindParseError,
		},
		{
			name: "not an object",
			raw:  `[1,2,3]`,
			kind: KindParseError,
		},
		{
			name: "missing header",
			raw:  `{"payload":{"result":"x"}}`,
			kind: KindParseError,
		},
		{
			name: "payload of wrong shape",
			raw:  `{"header":{"name":"SentenceEnd"},"payload":{"index":"one"}}`,
			kind: KindParseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Decode(Frame{Type: TextFrame, Data: []byte(tt.raw)})
			if !ok {
				t.Fatal("text frame must always decode to an event")
			}
			if ev.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", ev.Kind, tt.kind)
			}
			if ev.Text != tt.text {
				t.Fatalf("text = %q, want %q", ev.Text, tt.text)
			}
			if tt.kind == KindParseError {
				if ev.Err == nil {
					t.Fatal("parse error must carry the cause")
				}
				if string(ev.Raw) != tt.raw {
					t.Fatalf("raw = %q, want %q", ev.Raw, tt.raw)
				}
			}
		})
	}
}

func TestDecode_SentenceEndFields(t *testing.T) {
	raw := `{"header":{"name":"SentenceEnd","status":20000000,"task_id":"` + testTaskID + `","message_id":"` + testMessageID + `"},` +
		`"payload":{"index":2,"time":5000,"begin_time":3100,"result":"world","confidence":0.75,"words":[{"text":"world","startTime":3100,"endTime":4000}]}}`
	ev, _ := Decode(Frame{Type: TextFrame, Data: []byte(raw)})
	if ev.Index != 2 || ev.Time != 5000 || ev.BeginTime != 3100 {
		t.Fatalf("unexpected timing fields: %+v", ev)
	}
	if ev.Confidence != 0.75 {
		t.Fatalf("confidence = %v", ev.Confidence)
	}
	if len(ev.Words) != 1 || ev.Words[0].Text != "world" || ev.Words[0].EndTime != 4000 {
		t.Fatalf("unexpected words: %+v", ev.Words)
	}
	if ev.TaskID != testTaskID || ev.MessageID != testMessageID {
		t.Fatalf("header ids not carried: %+v", ev)
	}
	if !ev.Succeeded() {
		t.Fatal("expected success status")
	}
}

func TestDecode_TaskFailedCarriesStatus(t *testing.T) {
	ev, _ := Decode(Frame{Type: TextFrame, Data: []byte(`{"header":{"name":"TaskFailed","status":41010101}}`)})
	if ev.StatusCode != 41010101 {
		t.Fatalf("status = %d", ev.StatusCode)
	}
	if ev.StatusMessage == "" {
		t.Fatal("failed event must have a human readable message")
	}
	if !ev.IsTerminal() || ev.Succeeded() {
		t.Fatalf("unexpected classification: %+v", ev)
	}
}

func TestDecode_IgnoresBinaryFrames(t *testing.T) {
	if _, ok := Decode(Frame{Type: BinaryFrame, Data: []byte{1, 2}}); ok {
		t.Fatal("binary frames must be ignored")
	}
}

func TestDecode_MissingHeaderError(t *testing.T) {
	ev, _ := Decode(Frame{Type: TextFrame, Data: []byte(`{"header":{}}`)})
	if !errors.Is(ev.Err, ErrMissingHeader) {
		t.Fatalf("expected ErrMissingHeader, got %v", ev.Err)
	}
}
