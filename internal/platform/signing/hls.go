// Package signing issues and verifies HMAC-signed proxy URLs. A signature
// may carry the upstream headers the proxy must replay.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Signer struct {
	Secret []byte
}

type Signed struct {
	URL string
	Exp int64
	UID string
	Hdr string
	Sig string
}

func New(secret string) *Signer {
	return &Signer{Secret: []byte(secret)}
}

func (s *Signer) Sign(rawURL, userID string, exp time.Time) Signed {
	sig := s.signValue(rawURL, userID, exp.Unix(), "")
	return Signed{URL: rawURL, Exp: exp.Unix(), UID: userID, Sig: sig}
}

// SignWithHeaders signs rawURL together with the encoded headers so they
// cannot be swapped on a valid link.
func (s *Signer) SignWithHeaders(rawURL, userID string, exp time.Time, hdrs map[string]string) Signed {
	hdr := EncodeHeaders(hdrs)
	return Signed{URL: rawURL, Exp: exp.Unix(), UID: userID, Hdr: hdr, Sig: s.signValue(rawURL, userID, exp.Unix(), hdr)}
}

func (s *Signer) Verify(rawURL, userID string, exp int64, sig string) bool {
	return s.VerifyWithHeaders(rawURL, userID, exp, "", sig)
}

// VerifyWithHeaders checks a signature produced by SignWithHeaders; hdr is
// the raw encoded header parameter.
func (s *Signer) VerifyWithHeaders(rawURL, userID string, exp int64, hdr, sig string) bool {
	if time.Now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(s.signValue(rawURL, userID, exp, hdr)))
}

func (s *Signer) signValue(rawURL, userID string, exp int64, hdr string) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(rawURL))
	mac.Write([]byte("|"))
	mac.Write([]byte(userID))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	if hdr != "" {
		mac.Write([]byte("|"))
		mac.Write([]byte(hdr))
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func BuildSignedURL(base string, signed Signed) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("url", signed.URL)
	q.Set("exp", strconv.FormatInt(signed.Exp, 10))
	q.Set("uid", signed.UID)
	q.Set("sig", signed.Sig)
	if signed.Hdr != "" {
		q.Set("hdr", signed.Hdr)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func ExtractSigned(query url.Values) (string, string, int64, string, error) {
	rawURL := strings.TrimSpace(query.Get("url"))
	uid := strings.TrimSpace(query.Get("uid"))
	expStr := strings.TrimSpace(query.Get("exp"))
	sig := strings.TrimSpace(query.Get("sig"))
	if rawURL == "" || uid == "" || expStr == "" || sig == "" {
		return "", "", 0, "", fmt.Errorf("missing signed params")
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", "", 0, "", err
	}
	return rawURL, uid, exp, sig, nil
}

// EncodeHeaders serializes headers as base64url JSON; empty input encodes
// to "".
func EncodeHeaders(hdrs map[string]string) string {
	if len(hdrs) == 0 {
		return ""
	}
	b, _ := json.Marshal(hdrs)
	return base64.RawURLEncoding.EncodeToString(b)
}

// ExtractHeaders decodes the hdr parameter. It returns nil when the
// parameter is absent or malformed.
func ExtractHeaders(query url.Values) map[string]string {
	raw := strings.TrimSpace(query.Get("hdr"))
	if raw == "" {
		return nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
