package token

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	timestampLayout = "2006-01-02T15:04:05Z"

	actionCreateToken = "CreateToken"
	apiVersion        = "2019-02-28"
	signatureMethod   = "HMAC-SHA1"
	signatureVersion  = "1.0"
	responseFormat    = "JSON"
)

type Credentials struct {
	AccessKeyID     string
	AccessKeySecret string
	RegionID        string
}

func (c Credentials) validate() error {
	if strings.TrimSpace(c.AccessKeyID) == "" || strings.TrimSpace(c.AccessKeySecret) == "" {
		return ErrMissingCredentials
	}
	if strings.TrimSpace(c.RegionID) == "" {
		return fmt.Errorf("region id is required")
	}
	return nil
}

// Signer builds CreateToken requests for the control plane. Now and Nonce are
// injectable so a signature can be reproduced byte for byte. Scheme defaults to
// https.
type Signer struct {
	Scheme string
	Host   string
	Now    func() time.Time
	Nonce  func() string
}

func NewSigner(host string) *Signer {
	return &Signer{
		Host:  host,
		Now:   time.Now,
		Nonce: func() string { return uuid.NewString() },
	}
}

func (s *Signer) Params(creds Credentials) map[string]string {
	return map[string]string{
		"AccessKeyId":      creds.AccessKeyID,
		"Action":           actionCreateToken,
		"Format":           responseFormat,
		"RegionId":         creds.RegionID,
		"SignatureMethod":  signatureMethod,
		"SignatureNonce":   s.Nonce(),
		"SignatureVersion": signatureVersion,
		"Timestamp":        s.Now().UTC().Format(timestampLayout),
		"Version":          apiVersion,
	}
}

// SignedURL returns https://{host}/?Signature=...&{canonicalized query}.
func (s *Signer) SignedURL(creds Credentials) (string, error) {
	if err := creds.validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(s.Host) == "" {
		return "", fmt.Errorf("control plane host is required")
	}
	query := CanonicalizedQuery(s.Params(creds))
	signature := Signature(StringToSign("GET", "/", query), creds.AccessKeySecret)
	scheme := s.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/?Signature=%s&%s", scheme, s.Host, PercentEncode(signature), query), nil
}

// PercentEncode is RFC 3986 encoding in the provider's canonical form.
func PercentEncode(s string) string {
	encoded := url.QueryEscape(s)
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	encoded = strings.ReplaceAll(encoded, "*", "%2A")
	return strings.ReplaceAll(encoded, "%7E", "~")
}

func CanonicalizedQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, PercentEncode(k)+"="+PercentEncode(params[k]))
	}
	return strings.Join(pairs, "&")
}

func StringToSign(method, path, canonicalizedQuery string) string {
	return method + "&" + PercentEncode(path) + "&" + PercentEncode(canonicalizedQuery)
}

func Signature(stringToSign, accessKeySecret string) string {
	mac := hmac.New(sha1.New, []byte(accessKeySecret+"&"))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature of a received CreateToken query.
func Verify(query url.Values, accessKeySecret string) error {
	got := query.Get("Signature")
	if got == "" {
		return ErrSignatureMismatch
	}
	params := make(map[string]string, len(query))
	for k := range query {
		if k == "Signature" {
			continue
		}
		params[k] = query.Get(k)
	}
	want := Signature(StringToSign("GET", "/", CanonicalizedQuery(params)), accessKeySecret)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrSignatureMismatch
	}
	return nil
}
