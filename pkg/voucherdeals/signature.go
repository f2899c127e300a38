package voucherdeals

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Sign produces the provider's proprietary request signature. The provider
// verifies it byte-for-byte, so the encoding rules are load-bearing:
// RFC 3986 percent-encoding (space as %20, * as %2A, ~ left bare), each query
// key and value encoded independently, the sorted joined query block encoded
// a second time, and the trimmed body hashed with SHA-256 before the whole
// signing input is HMAC-SHA1'd with the shared secret.
func Sign(method, rawURL, body, nonce, secret string) string {
	baseURL, query := splitURL(rawURL)

	pairs := make([]string, 0, len(query))
	for key, values := range query {
		for _, value := range values {
			pairs = append(pairs, percentEncode(key)+"="+percentEncode(value))
		}
	}
	sort.Strings(pairs)
	queryBlock := percentEncode(strings.Join(pairs, "&"))

	bodyHash := sha256.Sum256([]byte(strings.TrimSpace(body)))

	input := strings.Join([]string{
		percentEncode(strings.ToUpper(method)),
		percentEncode(nonce),
		percentEncode(baseURL),
		queryBlock,
		hex.EncodeToString(bodyHash[:]),
	}, "&")

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(input))
	return percentEncode(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

func splitURL(rawURL string) (string, url.Values) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, nil
	}
	base := parsed.Scheme + "://" + parsed.Host + parsed.EscapedPath()
	return base, parsed.Query()
}

// percentEncode implements the RFC 3986 unreserved-set convention. The
// stdlib encoders are close but not exact (space as +, ~ escaped), and the
// provider rejects signatures built with either deviation.
func percentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0F])
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	}
	return false
}
