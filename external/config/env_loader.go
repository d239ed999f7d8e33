package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/nlscribe/internal/config"
)

type envConfig struct {
	Env                            string        `env:"ENV" envDefault:"production"`
	AppKey                         string        `env:"NLS_APP_KEY,required"`
	AccessKeyID                    string        `env:"NLS_ACCESS_KEY_ID"`
	AccessKeySecret                string        `env:"NLS_ACCESS_KEY_SECRET"`
	Region                         string        `env:"NLS_REGION" envDefault:"shanghai"`
	GatewayURL                     string        `env:"NLS_GATEWAY_URL"`
	ControlPlaneHost               string        `env:"NLS_CONTROL_PLANE_HOST"`
	TokenServiceURL                string        `env:"NLS_TOKEN_SERVICE_URL"`
	AudioSampleRate                int           `env:"AUDIO_SAMPLE_RATE" envDefault:"16000"`
	AudioChunkSamples              int           `env:"AUDIO_CHUNK_SAMPLES" envDefault:"960"`
	AudioInput                     string        `env:"AUDIO_INPUT" envDefault:"sine:10s"`
	EnableIntermediateResult       bool          `env:"ENABLE_INTERMEDIATE_RESULT" envDefault:"true"`
	EnablePunctuationPrediction    bool          `env:"ENABLE_PUNCTUATION_PREDICTION" envDefault:"true"`
	EnableInverseTextNormalization bool          `env:"ENABLE_INVERSE_TEXT_NORMALIZATION" envDefault:"true"`
	AwaitTranscriptionStarted      bool          `env:"AWAIT_TRANSCRIPTION_STARTED" envDefault:"true"`
	ConnectTimeout                 time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
	StartTimeout                   time.Duration `env:"START_TIMEOUT" envDefault:"10s"`
	StopTimeout                    time.Duration `env:"STOP_TIMEOUT" envDefault:"5s"`
	DatabaseURL                    string        `env:"DATABASE_URL"`
	TranscriptWebhookURL           string        `env:"TRANSCRIPT_WEBHOOK_URL"`
	TranscriptTimezone             string        `env:"TRANSCRIPT_TIMEZONE" envDefault:"Asia/Shanghai"`
	TranscriptFilter               bool          `env:"TRANSCRIPT_FILTER" envDefault:"true"`
	DiscordToken                   string        `env:"DISCORD_TOKEN"`
	DiscordChannelID               string        `env:"DISCORD_CHANNEL_ID"`
	MetricsAddr                    string        `env:"METRICS_ADDR"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	cfg := fromEnv(raw)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv(raw envConfig) *internalconfig.Config {
	region := internalconfig.ResolveRegion(raw.Region)
	gatewayURL := raw.GatewayURL
	if gatewayURL == "" {
		gatewayURL = internalconfig.DefaultGatewayURL(region)
	}
	controlPlaneHost := raw.ControlPlaneHost
	if controlPlaneHost == "" {
		controlPlaneHost = internalconfig.DefaultControlPlaneHost(region)
	}
	return &internalconfig.Config{
		Env:                            raw.Env,
		AppKey:                         raw.AppKey,
		AccessKeyID:                    raw.AccessKeyID,
		AccessKeySecret:                raw.AccessKeySecret,
		Region:                         region,
		GatewayURL:                     gatewayURL,
		ControlPlaneHost:               controlPlaneHost,
		TokenServiceURL:                raw.TokenServiceURL,
		AudioSampleRate:                raw.AudioSampleRate,
		AudioChunkSamples:              raw.AudioChunkSamples,
		AudioInput:                     raw.AudioInput,
		EnableIntermediateResult:       raw.EnableIntermediateResult,
		EnablePunctuationPrediction:    raw.EnablePunctuationPrediction,
		EnableInverseTextNormalization: raw.EnableInverseTextNormalization,
		AwaitTranscriptionStarted:      raw.AwaitTranscriptionStarted,
		ConnectTimeout:                 raw.ConnectTimeout,
		StartTimeout:                   raw.StartTimeout,
		StopTimeout:                    raw.StopTimeout,
		DatabaseURL:                    raw.DatabaseURL,
		TranscriptWebhookURL:           raw.TranscriptWebhookURL,
		TranscriptTimezone:             raw.TranscriptTimezone,
		TranscriptFilter:               raw.TranscriptFilter,
		DiscordToken:                   raw.DiscordToken,
		DiscordChannelID:               raw.DiscordChannelID,
		MetricsAddr:                    raw.MetricsAddr,
	}
}
