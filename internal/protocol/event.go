package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type EventKind int

const (
	KindUnknown EventKind = iota
	KindStarted
	KindSentenceBegin
	KindPartialResult
	KindSentenceEnd
	KindCompleted
	KindFailed
	KindParseError
)

func (k EventKind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindSentenceBegin:
		return "sentence_begin"
	case KindPartialResult:
		return "partial_result"
	case KindSentenceEnd:
		return "sentence_end"
	case KindCompleted:
		return "completed"
	case KindFailed:
		return "failed"
	case KindParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

type Word struct {
	Text      string `json:"text"`
	StartTime int    `json:"startTime"`
	EndTime   int    `json:"endTime"`
}

// Event is a decoded server notification, or a locally synthesized terminal
// failure (connect timeout, transport loss) with Err set.
type Event struct {
	Kind          EventKind
	Name          string
	TaskID        string
	MessageID     string
	StatusCode    int
	StatusMessage string

	Text       string
	Index      int
	Time       int
	BeginTime  int
	Confidence float64
	Words      []Word

	Payload json.RawMessage
	Raw     []byte
	Err     error
}

func (e Event) IsTerminal() bool {
	return e.Kind == KindCompleted || e.Kind == KindFailed
}

func (e Event) Succeeded() bool {
	return e.StatusCode == StatusSuccess
}

type inboundHeader struct {
	MessageID     string `json:"message_id"`
	TaskID        string `json:"task_id"`
	Namespace     string `json:"namespace"`
	Name          string `json:"name"`
	Status        int    `json:"status"`
	StatusMessage string `json:"status_message"`
	StatusText    string `json:"status_text"`
}

type inboundEnvelope struct {
	Header  *inboundHeader  `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

type sentencePayload struct {
	Index      int     `json:"index"`
	Time       int     `json:"time"`
	BeginTime  int     `json:"begin_time"`
	Result     string  `json:"result"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

var (
	ErrMissingHeader = errors.New("event has no header name")
	ErrNotJSONObject = errors.New("event is not a json object")
)

// Decode turns an inbound frame into an Event. Binary frames are not expected
// on the receive path and report ok=false. Malformed text never fails the
// caller; it comes back as KindParseError carrying the raw bytes.
func Decode(f Frame) (Event, bool) {
	if f.Type != TextFrame {
		return Event{}, false
	}
	trimmed := bytes.TrimSpace(f.Data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return parseError(f.Data, ErrNotJSONObject), true
	}
	var env inboundEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return parseError(f.Data, err), true
	}
	if env.Header == nil || env.Header.Name == "" {
		return parseError(f.Data, ErrMissingHeader), true
	}

	h := env.Header
	ev := Event{
		Name:          h.Name,
		TaskID:        h.TaskID,
		MessageID:     h.MessageID,
		StatusCode:    h.Status,
		StatusMessage: h.StatusMessage,
		Payload:       env.Payload,
		Raw:           f.Data,
	}
	if ev.StatusMessage == "" {
		ev.StatusMessage = h.StatusText
	}

	switch h.Name {
	case NameTranscriptionStarted:
		ev.Kind = KindStarted
	case NameTranscriptionCompleted:
		ev.Kind = KindCompleted
	case NameTaskFailed:
		ev.Kind = KindFailed
		if ev.StatusMessage == "" {
			ev.StatusMessage = fmt.Sprintf("task failed with status %d", ev.StatusCode)
		}
	case NameSentenceBegin, NameTranscriptionResultChanged, NameSentenceEnd:
		var p sentencePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return parseError(f.Data, fmt.Errorf("%s payload: %w", h.Name, err)), true
		}
		ev.Index = p.Index
		ev.Time = p.Time
		ev.BeginTime = p.BeginTime
		ev.Text = p.Result
		ev.Confidence = p.Confidence
		ev.Words = p.Words
		switch h.Name {
		case NameSentenceBegin:
			ev.Kind = KindSentenceBegin
		case NameTranscriptionResultChanged:
			ev.Kind = KindPartialResult
		default:
			ev.Kind = KindSentenceEnd
		}
	default:
		ev.Kind = KindUnknown
	}
	return ev, true
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func parseError(raw []byte, err error) Event {
	return Event{
		Kind:          KindParseError,
		Raw:           raw,
		Err:           err,
		StatusMessage: err.Error(),
	}
}
