package jwt

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/edgegw/internal/auth"
)

// DefaultTokenTTL is the lifetime of tokens issued by Signer.
const DefaultTokenTTL = time.Hour

// Signer issues tokens that a Verifier built from the same Config accepts.
type Signer struct {
	key    []byte
	alg    jwa.SignatureAlgorithm
	claims ClaimNames
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. A non-positive ttl uses DefaultTokenTTL.
func NewSigner(cfg *Config, ttl time.Duration, opts ...Option) (*Signer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("jwt: config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	alg, _ := cfg.signatureAlgorithm()
	o := buildOptions(opts)

	return &Signer{
		key:    append([]byte(nil), cfg.Secret...),
		alg:    alg,
		claims: cfg.Claims,
		ttl:    ttl,
		now:    o.now,
	}, nil
}

// Sign issues a token for p. A zero p.ExpiresAt is replaced by now+ttl.
func (s *Signer) Sign(p *auth.Principal) (string, error) {
	if p == nil || p.SubjectID == "" {
		return "", fmt.Errorf("jwt: principal subject is required")
	}
	if !p.Role.Valid() {
		return "", fmt.Errorf("jwt: invalid role %q", p.Role)
	}

	now := s.now()
	exp := p.ExpiresAt
	if exp.IsZero() {
		exp = now.Add(s.ttl)
	}

	b := jwxt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(p.SubjectID).
		IssuedAt(now).
		Expiration(exp).
		Claim(s.claims.Subject, p.SubjectID).
		Claim(s.claims.Role, string(p.Role))
	if p.Name != "" && s.claims.Name != "" {
		b = b.Claim(s.claims.Name, p.Name)
	}
	if p.Email != "" && s.claims.Email != "" {
		b = b.Claim(s.claims.Email, p.Email)
	}

	tok, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("jwt: build token: %w", err)
	}
	signed, err := jwxt.Sign(tok, jwxt.WithKey(s.alg, s.key))
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return string(signed), nil
}
