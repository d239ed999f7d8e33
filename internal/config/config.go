package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

var regionAliases = map[string]string{
	"beijing":   "cn-beijing",
	"shanghai":  "cn-shanghai",
	"singapore": "ap-southeast-1",
}

type Config struct {
	Env                            string
	AppKey                         string
	AccessKeyID                    string
	AccessKeySecret                string
	Region                         string
	GatewayURL                     string
	ControlPlaneHost               string
	TokenServiceURL                string
	AudioSampleRate                int
	AudioChunkSamples              int
	AudioInput                     string
	EnableIntermediateResult       bool
	EnablePunctuationPrediction    bool
	EnableInverseTextNormalization bool
	AwaitTranscriptionStarted      bool
	ConnectTimeout                 time.Duration
	StartTimeout                   time.Duration
	StopTimeout                    time.Duration
	DatabaseURL                    string
	TranscriptWebhookURL           string
	TranscriptTimezone             string
	TranscriptFilter               bool
	DiscordToken                   string
	DiscordChannelID               string
	MetricsAddr                    string
}

// ResolveRegion maps the short names beijing, shanghai and singapore to
// region ids. Anything else is returned as given.
func ResolveRegion(region string) string {
	r := strings.ToLower(strings.TrimSpace(region))
	if id, ok := regionAliases[r]; ok {
		return id
	}
	return r
}

func DefaultGatewayURL(regionID string) string {
	return fmt.Sprintf("wss://nls-gateway-%s.aliyuncs.com/ws/v1", regionID)
}

func DefaultControlPlaneHost(regionID string) string {
	return fmt.Sprintf("nls-meta.%s.aliyuncs.com", regionID)
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.TokenServiceURL == "" && (c.AccessKeyID == "" || c.AccessKeySecret == "") {
		return fmt.Errorf("NLS_ACCESS_KEY_ID and NLS_ACCESS_KEY_SECRET are required when NLS_TOKEN_SERVICE_URL is not set")
	}
	if err := validateGatewayURL(c.GatewayURL); err != nil {
		return err
	}
	if c.AudioSampleRate != 8000 && c.AudioSampleRate != 16000 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be 8000 or 16000, got %d", c.AudioSampleRate)
	}
	if c.AudioChunkSamples <= 0 {
		return fmt.Errorf("AUDIO_CHUNK_SAMPLES must be positive, got %d", c.AudioChunkSamples)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{name: "CONNECT_TIMEOUT", value: c.ConnectTimeout},
		{name: "START_TIMEOUT", value: c.StartTimeout},
		{name: "STOP_TIMEOUT", value: c.StopTimeout},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if (c.DiscordToken == "") != (c.DiscordChannelID == "") {
		return fmt.Errorf("DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	if c.TranscriptTimezone == "" {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is required")
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

func validateGatewayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("NLS_GATEWAY_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("NLS_GATEWAY_URL must use ws or wss, got %q", u.Scheme)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "NLS_APP_KEY", value: c.AppKey},
		{name: "NLS_REGION", value: c.Region},
		{name: "NLS_GATEWAY_URL", value: c.GatewayURL},
		{name: "NLS_CONTROL_PLANE_HOST", value: c.ControlPlaneHost},
		{name: "AUDIO_INPUT", value: c.AudioInput},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ChunkDuration is the playback length of one audio chunk.
func (c *Config) ChunkDuration() time.Duration {
	if c.AudioSampleRate <= 0 {
		return 0
	}
	return time.Duration(c.AudioChunkSamples) * time.Second / time.Duration(c.AudioSampleRate)
}
