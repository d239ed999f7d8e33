package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/foxseedlab/nlscribe/internal/token"
)

type backendTokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// BackendIssuer asks an application backend for a token so credentials never
// leave that backend.
type BackendIssuer struct {
	serviceURL string
	client     *http.Client
	now        func() time.Time
}

func NewBackendIssuer(serviceURL string, client *http.Client) *BackendIssuer {
	if client == nil {
		client = &http.Client{Timeout: tokenRequestTimeout}
	}
	return &BackendIssuer{serviceURL: serviceURL, client: client, now: time.Now}
}

func (i *BackendIssuer) Issue(ctx context.Context) (token.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.serviceURL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return token.Token{}, fmt.Errorf("build token service request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := i.client.Do(req)
	if err != nil {
		return token.Token{}, fmt.Errorf("%w: %v", token.ErrNetwork, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return token.Token{}, fmt.Errorf("%w: token service returned status %d", token.ErrResponseFormat, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBodyBytes))
	if err != nil {
		return token.Token{}, fmt.Errorf("%w: read body: %v", token.ErrNetwork, err)
	}

	var parsed backendTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return token.Token{}, fmt.Errorf("%w: %v", token.ErrResponseFormat, err)
	}
	value := parsed.Token
	if value == "" {
		value = parsed.AccessToken
	}
	if strings.TrimSpace(value) == "" {
		return token.Token{}, fmt.Errorf("%w: token is missing", token.ErrResponseFormat)
	}
	tok := token.Token{Value: value}
	if parsed.ExpiresIn > 0 {
		tok.ExpiresAt = i.now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}
	return tok, nil
}
