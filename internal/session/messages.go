package session

import "fmt"

const (
	stopReasonInputExhausted    = "input_exhausted"
	stopReasonManualStop        = "manual_stop"
	stopReasonServerClosed      = "server_closed"
	stopReasonTranscriberFailed = "transcriber_failed"
	stopReasonAudioFailed       = "audio_failed"
	stopReasonStartFailed       = "start_failed"
	stopReasonOrphaned          = "orphaned"

	messageStartTitleFormat = ":microphone2: **Transcription started** for `%s`"
	messageStopTitleFormat  = ":pause_button: **Transcription finished** for `%s`"
	messageFailTitleFormat  = ":warning: **Transcription failed** for `%s`"
	messageAttachmentTitle  = ":page_facing_up: **Transcript**"
)

func startTitle(job string) string {
	return fmt.Sprintf(messageStartTitleFormat, job)
}

func finishTitle(job string, completed bool) string {
	if completed {
		return fmt.Sprintf(messageStopTitleFormat, job)
	}
	return fmt.Sprintf(messageFailTitleFormat, job)
}

func stopReasonDetail(reason string) string {
	switch reason {
	case stopReasonInputExhausted:
		return "The audio input reached its end."
	case stopReasonManualStop:
		return "The job was stopped on request."
	case stopReasonServerClosed:
		return "The transcription service is shutting down."
	case stopReasonTranscriberFailed:
		return "The transcription gateway ended the session."
	case stopReasonAudioFailed:
		return "The audio input could not be read."
	case stopReasonStartFailed:
		return "The transcription session could not be started."
	case stopReasonOrphaned:
		return "The previous run did not finish cleanly."
	default:
		return "An unknown error occurred."
	}
}
