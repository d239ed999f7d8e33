package token

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/foxseedlab/nlscribe/internal/config"
	"github.com/foxseedlab/nlscribe/internal/token"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

var testCreds = token.Credentials{AccessKeyID: "id", AccessKeySecret: "secret", RegionID: "cn-shanghai"}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newControlPlaneIssuer(rt roundTripFunc) *ControlPlaneIssuer {
	return NewControlPlaneIssuer(token.NewSigner("nls-meta.cn-shanghai.aliyuncs.com"), testCreds, &http.Client{Transport: rt})
}

func TestControlPlaneIssuer_Success(t *testing.T) {
	issuer := newControlPlaneIssuer(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", req.Method)
		}
		if req.URL.Scheme != "https" || req.URL.Host != "nls-meta.cn-shanghai.aliyuncs.com" {
			t.Fatalf("unexpected url: %s", req.URL.String())
		}
		q := req.URL.Query()
		if q.Get("Action") != "CreateToken" || q.Get("Signature") == "" {
			t.Fatalf("unexpected query: %s", req.URL.RawQuery)
		}
		if err := token.Verify(q, testCreds.AccessKeySecret); err != nil {
			t.Fatalf("signature did not verify: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"NlsRequestId":"x","Token":{"UserId":"1","Id":"tok-123","ExpireTime":1700003600}}`), nil
	})

	tok, err := issuer.Issue(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Value != "tok-123" {
		t.Fatalf("unexpected token: %s", tok.Value)
	}
	if !tok.ExpiresAt.Equal(time.Unix(1700003600, 0)) {
		t.Fatalf("unexpected expiry: %v", tok.ExpiresAt)
	}
}

func TestControlPlaneIssuer_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		rt   roundTripFunc
		want error
	}{
		{
			name: "transport failure",
			rt: func(_ *http.Request) (*http.Response, error) {
				return nil, errors.New("dial tcp: connection refused")
			},
			want: token.ErrNetwork,
		},
		{
			name: "non 200",
			rt: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusForbidden, `{"Code":"InvalidAccessKeyId.NotFound","Message":"Specified access key is not found."}`), nil
			},
			want: token.ErrResponseFormat,
		},
		{
			name: "malformed body",
			rt: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `<html>`), nil
			},
			want: token.ErrResponseFormat,
		},
		{
			name: "missing token",
			rt: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"Token":{"Id":"","ExpireTime":1}}`), nil
			},
			want: token.ErrResponseFormat,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newControlPlaneIssuer(tt.rt).Issue(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestControlPlaneIssuer_MissingCredentials(t *testing.T) {
	issuer := NewControlPlaneIssuer(token.NewSigner("host"), token.Credentials{RegionID: "cn-shanghai"}, &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			t.Fatalf("unexpected request: %s", req.URL.String())
			return nil, nil
		}),
	})
	if _, err := issuer.Issue(context.Background()); !errors.Is(err, token.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestBackendIssuer_AcceptsBothTokenFields(t *testing.T) {
	bodies := []string{
		`{"token":"mock_token_1","expires_in":3600}`,
		`{"access_token":"mock_token_1","expires_in":3600}`,
	}
	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Fatalf("unexpected method: %s", r.Method)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}))

		issuer := NewBackendIssuer(server.URL+"/token", nil)
		now := time.Unix(1700000000, 0)
		issuer.now = func() time.Time { return now }
		tok, err := issuer.Issue(context.Background())
		server.Close()
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", body, err)
		}
		if tok.Value != "mock_token_1" {
			t.Fatalf("unexpected token for %s: %s", body, tok.Value)
		}
		if tok.TTL(now) != time.Hour {
			t.Fatalf("unexpected ttl for %s: %v", body, tok.TTL(now))
		}
	}
}

func TestBackendIssuer_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fail":
			w.WriteHeader(http.StatusInternalServerError)
		case "/empty":
			_, _ = w.Write([]byte(`{"message":"no token"}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer server.Close()

	for _, path := range []string{"/fail", "/empty", "/garbage"} {
		_, err := NewBackendIssuer(server.URL+path, nil).Issue(context.Background())
		if !errors.Is(err, token.ErrResponseFormat) {
			t.Fatalf("%s: expected ErrResponseFormat, got %v", path, err)
		}
	}

	_, err := NewBackendIssuer("http://127.0.0.1:1/token", nil).Issue(context.Background())
	if !errors.Is(err, token.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestNewIssuer_PrefersTokenService(t *testing.T) {
	cfg := &config.Config{TokenServiceURL: "http://localhost/token", ControlPlaneHost: "host", Region: "cn-shanghai"}
	if _, ok := NewIssuer(cfg).(*BackendIssuer); !ok {
		t.Fatal("expected backend issuer when token service url is set")
	}
	cfg.TokenServiceURL = ""
	if _, ok := NewIssuer(cfg).(*ControlPlaneIssuer); !ok {
		t.Fatal("expected control plane issuer otherwise")
	}
}
