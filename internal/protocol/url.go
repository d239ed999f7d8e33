package protocol

import (
	"fmt"
	"net/url"
	"strings"
)

const gatewayPath = "/ws/v1"

// GatewayURL appends the access token to a gateway base such as
// "wss://nls-gateway-cn-shanghai.aliyuncs.com". A base that already ends in
// /ws/v1 is accepted as is.
func GatewayURL(base, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("gateway token is empty")
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid gateway url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid gateway url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("gateway url has no host")
	}
	if !strings.HasSuffix(u.Path, gatewayPath) {
		u.Path = strings.TrimSuffix(u.Path, "/") + gatewayPath
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
