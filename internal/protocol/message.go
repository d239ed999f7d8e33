package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	Namespace = "SpeechTranscriber"

	NameStartTranscription = "StartTranscription"
	NameStopTranscription  = "StopTranscription"

	NameTranscriptionStarted       = "TranscriptionStarted"
	NameSentenceBegin              = "SentenceBegin"
	NameTranscriptionResultChanged = "TranscriptionResultChanged"
	NameSentenceEnd                = "SentenceEnd"
	NameTranscriptionCompleted     = "TranscriptionCompleted"
	NameTaskFailed                 = "TaskFailed"

	StatusSuccess = 20000000

	AudioFormatPCM = "pcm"
)

type ControlHeader struct {
	MessageID string `json:"message_id"`
	TaskID    string `json:"task_id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	AppKey    string `json:"appkey"`
}

type StartPayload struct {
	Format                         string `json:"format"`
	SampleRate                     int    `json:"sample_rate"`
	EnableIntermediateResult       bool   `json:"enable_intermediate_result"`
	EnablePunctuationPrediction    bool   `json:"enable_punctuation_prediction"`
	EnableInverseTextNormalization bool   `json:"enable_inverse_text_normalization"`
	MaxSentenceSilence             int    `json:"max_sentence_silence,omitempty"`
	VocabularyID                   string `json:"vocabulary_id,omitempty"`
}

type controlEnvelope struct {
	Header  ControlHeader `json:"header"`
	Payload any           `json:"payload,omitempty"`
}

// EncodeControl builds a text frame for a client command. Namespace is forced
// to SpeechTranscriber; a nil payload is omitted from the envelope.
func EncodeControl(name string, header ControlHeader, payload any) (Frame, error) {
	if name == "" {
		return Frame{}, fmt.Errorf("control message name is required")
	}
	if !IsHexID(header.MessageID) {
		return Frame{}, fmt.Errorf("invalid message_id %q", header.MessageID)
	}
	if !IsHexID(header.TaskID) {
		return Frame{}, fmt.Errorf("invalid task_id %q", header.TaskID)
	}
	header.Name = name
	header.Namespace = Namespace
	b, err := json.Marshal(controlEnvelope{Header: header, Payload: payload})
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s: %w", name, err)
	}
	return Frame{Type: TextFrame, Data: b}, nil
}
