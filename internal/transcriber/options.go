package transcriber

import (
	"log/slog"
	"time"

	"github.com/foxseedlab/nlscribe/internal/config"
	"github.com/foxseedlab/nlscribe/internal/protocol"
)

const (
	defaultStartTimeout = 10 * time.Second
	defaultStopTimeout  = 5 * time.Second
	defaultEventBuffer  = 64
	defaultSampleRate   = 16000
)

type Options struct {
	AppKey     string
	GatewayURL string

	Format                         string
	SampleRate                     int
	EnableIntermediateResult       bool
	EnablePunctuationPrediction    bool
	EnableInverseTextNormalization bool
	MaxSentenceSilence             int
	VocabularyID                   string

	// AwaitStarted makes Start block until TranscriptionStarted arrives.
	// When false, audio may be pushed right after StartTranscription is sent.
	AwaitStarted bool
	StartTimeout time.Duration
	StopTimeout  time.Duration

	// EventBuffer sizes the channel returned by Session.Events.
	EventBuffer int

	NewID  protocol.IDSource
	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Format:                         protocol.AudioFormatPCM,
		SampleRate:                     defaultSampleRate,
		EnableIntermediateResult:       true,
		EnablePunctuationPrediction:    true,
		EnableInverseTextNormalization: true,
		AwaitStarted:                   true,
		StartTimeout:                   defaultStartTimeout,
		StopTimeout:                    defaultStopTimeout,
		EventBuffer:                    defaultEventBuffer,
	}
}

func OptionsFromConfig(c *config.Config) Options {
	o := DefaultOptions()
	o.AppKey = c.AppKey
	o.GatewayURL = c.GatewayURL
	o.SampleRate = c.AudioSampleRate
	o.EnableIntermediateResult = c.EnableIntermediateResult
	o.EnablePunctuationPrediction = c.EnablePunctuationPrediction
	o.EnableInverseTextNormalization = c.EnableInverseTextNormalization
	o.AwaitStarted = c.AwaitTranscriptionStarted
	o.StartTimeout = c.StartTimeout
	o.StopTimeout = c.StopTimeout
	return o
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = protocol.AudioFormatPCM
	}
	if o.SampleRate <= 0 {
		o.SampleRate = defaultSampleRate
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = defaultStartTimeout
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = defaultStopTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = defaultEventBuffer
	}
	if o.NewID == nil {
		o.NewID = protocol.NewID
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) startPayload() protocol.StartPayload {
	return protocol.StartPayload{
		Format:                         o.Format,
		SampleRate:                     o.SampleRate,
		EnableIntermediateResult:       o.EnableIntermediateResult,
		EnablePunctuationPrediction:    o.EnablePunctuationPrediction,
		EnableInverseTextNormalization: o.EnableInverseTextNormalization,
		MaxSentenceSilence:             o.MaxSentenceSilence,
		VocabularyID:                   o.VocabularyID,
	}
}
