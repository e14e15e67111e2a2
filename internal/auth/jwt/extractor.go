package jwt

import (
	"net/http"
	"strings"

	"github.com/vyrodovalexey/edgegw/internal/auth"
)

// Default header and scheme for bearer credentials.
const (
	DefaultHeader = "Authorization"
	DefaultScheme = "Bearer "
)

// HeaderExtractor extracts bearer tokens from a request header.
type HeaderExtractor struct {
	header string
	prefix string
}

// NewHeaderExtractor creates a header extractor.
// Empty header and prefix default to "Authorization" and "Bearer ".
func NewHeaderExtractor(header, prefix string) *HeaderExtractor {
	if header == "" {
		header = DefaultHeader
	}
	if prefix == "" {
		prefix = DefaultScheme
	}
	return &HeaderExtractor{header: header, prefix: prefix}
}

// Extract returns the token from the header. The scheme is matched
// case-insensitively. A missing header or an empty token is reported as
// ErrMissingCredential. A credential under another scheme cannot be a valid
// bearer token and is reported as ErrInvalidToken.
func (e *HeaderExtractor) Extract(h http.Header) (string, error) {
	value := h.Get(e.header)
	if value == "" {
		return "", auth.NewError(auth.ErrMissingCredential, "missing "+e.header+" header")
	}
	if len(value) < len(e.prefix) || !strings.EqualFold(value[:len(e.prefix)], e.prefix) {
		if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(e.prefix)) {
			return "", auth.NewError(auth.ErrMissingCredential, "empty bearer token")
		}
		return "", auth.NewError(auth.ErrInvalidToken, "unsupported authorization scheme")
	}
	token := strings.TrimSpace(value[len(e.prefix):])
	if token == "" {
		return "", auth.NewError(auth.ErrMissingCredential, "empty bearer token")
	}
	return token, nil
}
