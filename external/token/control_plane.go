package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/foxseedlab/nlscribe/internal/token"
)

const (
	tokenRequestTimeout = 10 * time.Second
	maxTokenBodyBytes   = 64 << 10
)

type createTokenResponse struct {
	Token *struct {
		ID         string `json:"Id"`
		ExpireTime int64  `json:"ExpireTime"`
	} `json:"Token"`
	ErrMsg  string `json:"ErrMsg"`
	Message string `json:"Message"`
	Code    string `json:"Code"`
}

type ControlPlaneIssuer struct {
	signer *token.Signer
	creds  token.Credentials
	client *http.Client
}

func NewControlPlaneIssuer(signer *token.Signer, creds token.Credentials, client *http.Client) *ControlPlaneIssuer {
	if client == nil {
		client = &http.Client{Timeout: tokenRequestTimeout}
	}
	return &ControlPlaneIssuer{signer: signer, creds: creds, client: client}
}

func (i *ControlPlaneIssuer) Issue(ctx context.Context) (token.Token, error) {
	signedURL, err := i.signer.SignedURL(i.creds)
	if err != nil {
		return token.Token{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return token.Token{}, fmt.Errorf("build create token request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return token.Token{}, fmt.Errorf("%w: %v", token.ErrNetwork, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBodyBytes))
	if err != nil {
		return token.Token{}, fmt.Errorf("%w: read body: %v", token.ErrNetwork, err)
	}

	var parsed createTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return token.Token{}, fmt.Errorf("%w: status %d: %v", token.ErrResponseFormat, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return token.Token{}, fmt.Errorf("%w: status %d: %s", token.ErrResponseFormat, resp.StatusCode, firstNonEmpty(parsed.ErrMsg, parsed.Message, parsed.Code))
	}
	if parsed.Token == nil || strings.TrimSpace(parsed.Token.ID) == "" {
		return token.Token{}, fmt.Errorf("%w: token id is missing", token.ErrResponseFormat)
	}

	tok := token.Token{Value: parsed.Token.ID}
	if parsed.Token.ExpireTime > 0 {
		tok.ExpiresAt = time.Unix(parsed.Token.ExpireTime, 0)
	}
	slog.Debug("control plane token issued", "region", i.creds.RegionID, "expires_at", tok.ExpiresAt)
	return tok, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "no error message"
}
