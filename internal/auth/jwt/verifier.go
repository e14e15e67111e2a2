package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/edgegw/internal/auth"
)

// Verifier validates bearer tokens and derives the principal they carry.
type Verifier struct {
	key    []byte
	alg    jwa.SignatureAlgorithm
	skew   time.Duration
	claims ClaimNames
	now    func() time.Time
}

// NewVerifier creates a verifier from cfg.
func NewVerifier(cfg *Config, opts ...Option) (*Verifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("jwt: config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	alg, _ := cfg.signatureAlgorithm()
	o := buildOptions(opts)

	key := make([]byte, len(cfg.Secret))
	copy(key, cfg.Secret)

	return &Verifier{
		key:    key,
		alg:    alg,
		skew:   cfg.ClockSkew,
		claims: cfg.Claims,
		now:    o.now,
	}, nil
}

// Verify checks the token signature and temporal claims and returns the principal.
// Errors are *auth.Error values of kind ErrMissingCredential, ErrTokenExpired
// or ErrInvalidToken.
func (v *Verifier) Verify(_ context.Context, token string) (*auth.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, auth.NewError(auth.ErrMissingCredential, "empty bearer token")
	}

	tok, err := jwxt.Parse([]byte(token),
		jwxt.WithKey(v.alg, v.key),
		jwxt.WithValidate(true),
		jwxt.WithAcceptableSkew(v.skew),
		jwxt.WithClock(jwxt.ClockFunc(v.now)),
		jwxt.WithRequiredClaim(jwxt.ExpirationKey),
	)
	if err != nil {
		if errors.Is(err, jwxt.ErrTokenExpired()) {
			return nil, auth.NewErrorWithCause(auth.ErrTokenExpired, "token has expired", err)
		}
		return nil, auth.NewErrorWithCause(auth.ErrInvalidToken, "token verification failed", err)
	}

	return v.principal(tok)
}

func (v *Verifier) principal(tok jwxt.Token) (*auth.Principal, error) {
	subject := claimString(tok, v.claims.Subject)
	if subject == "" {
		subject = tok.Subject()
	}
	if subject == "" {
		return nil, auth.NewError(auth.ErrInvalidToken, "missing subject claim")
	}

	rawRole := claimString(tok, v.claims.Role)
	if rawRole == "" {
		return nil, auth.NewError(auth.ErrInvalidToken, "missing role claim")
	}
	role, err := auth.ParseRole(rawRole)
	if err != nil {
		return nil, err
	}

	p := &auth.Principal{
		SubjectID: subject,
		Role:      role,
		ExpiresAt: tok.Expiration(),
	}
	if v.claims.Name != "" {
		p.Name = claimString(tok, v.claims.Name)
	}
	if v.claims.Email != "" {
		p.Email = claimString(tok, v.claims.Email)
	}
	return p, nil
}

// claimString reads a claim as a string. Numeric identifiers are formatted
// without exponent.
func claimString(tok jwxt.Token, name string) string {
	raw, ok := tok.Get(name)
	if !ok {
		return ""
	}
	switch val := raw.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case fmt.Stringer:
		return val.String()
	default:
		return ""
	}
}
