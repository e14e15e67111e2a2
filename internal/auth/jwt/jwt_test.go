package jwt

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	jwxt "github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testConfig() *Config {
	return &Config{
		Secret:    []byte(testSecret),
		Algorithm: "HS256",
		ClockSkew: 5 * time.Second,
		Claims:    DefaultClaimNames(),
	}
}

func newPair(t *testing.T) (*Signer, *Verifier) {
	t.Helper()
	s, err := NewSigner(testConfig(), time.Hour, WithClock(fixedClock(epoch)))
	require.NoError(t, err)
	v, err := NewVerifier(testConfig(), WithClock(fixedClock(epoch)))
	require.NoError(t, err)
	return s, v
}

func rawToken(t *testing.T, key []byte, alg jwa.SignatureAlgorithm, claims map[string]any) string {
	t.Helper()
	b := jwxt.NewBuilder()
	for k, v := range claims {
		b = b.Claim(k, v)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	signed, err := jwxt.Sign(tok, jwxt.WithKey(alg, key))
	require.NoError(t, err)
	return string(signed)
}

func TestSignVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	s, v := newPair(t)

	token, err := s.Sign(&auth.Principal{
		SubjectID: "user-42",
		Role:      auth.RoleManager,
		Name:      "Ada",
		Email:     "ada@example.com",
	})
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", p.SubjectID)
	assert.Equal(t, auth.RoleManager, p.Role)
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.True(t, p.ExpiresAt.Equal(epoch.Add(time.Hour)))
}

func TestVerify_Failures(t *testing.T) {
	t.Parallel()

	key := []byte(testSecret)
	future := epoch.Add(time.Hour).Unix()
	past := epoch.Add(-time.Minute).Unix()

	tests := []struct {
		name     string
		token    string
		wantKind error
		wantCode util.Code
	}{
		{
			name:     "empty",
			token:    "  ",
			wantKind: auth.ErrMissingCredential,
			wantCode: util.CodeUnauthorized,
		},
		{
			name:     "garbage",
			token:    "not.a.jwt",
			wantKind: auth.ErrInvalidToken,
			wantCode: util.CodeInvalidToken,
		},
		{
			name: "wrong secret",
			token: rawToken(t, []byte("another-secret-of-sufficient-size"), jwa.HS256,
				map[string]any{"userId": "u1", "role": "user", "exp": future}),
			wantKind: auth.ErrInvalidToken,
			wantCode: util.CodeInvalidToken,
		},
		{
			name:     "wrong algorithm",
			token:    rawToken(t, key, jwa.HS512, map[string]any{"userId": "u1", "role": "user", "exp": future}),
			wantKind: auth.ErrInvalidToken,
			wantCode: util.CodeInvalidToken,
		},
		{
			name:     "expired",
			token:    rawToken(t, key, jwa.HS256, map[string]any{"userId": "u1", "role": "user", "exp": past}),
			wantKind: auth.ErrTokenExpired,
			wantCode: util.CodeTokenExpired,
		},
		{
			name:     "missing exp",
			token:    rawToken(t, key, jwa.HS256, map[string]any{"userId": "u1", "role": "user"}),
			wantKind: auth.ErrInvalidToken,
			wantCode: util.CodeInvalidToken,
		},
		{
			name:     "unknown role",
			token:    rawToken(t, key, jwa.HS256, map[string]any{"userId": "u1", "role": "root", "exp": future}),
			wantKind: auth.ErrInvalidToken,
			wantCode: util.CodeInvalidToken,
		},
		{
			name:     "missing role",
			token:    rawToken(t, key, jwa.HS256, map[string]any{"userId": "u1", "exp": future}),
			wantKind: auth.ErrInvalidToken,
			wantCode: util.CodeInvalidToken,
		},
		{
			name:     "missing subject",
			token:    rawToken(t, key, jwa.HS256, map[string]any{"role": "user", "exp": future}),
			wantKind: auth.ErrInvalidToken,
			wantCode: util.CodeInvalidToken,
		},
	}

	_, v := newPair(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := v.Verify(context.Background(), tt.token)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.wantCode, auth.CodeFor(err))
		})
	}
}

func TestVerify_ClockSkew(t *testing.T) {
	t.Parallel()

	key := []byte(testSecret)
	token := rawToken(t, key, jwa.HS256, map[string]any{
		"userId": "u1",
		"role":   "user",
		"exp":    epoch.Add(-2 * time.Second).Unix(),
	})

	v, err := NewVerifier(testConfig(), WithClock(fixedClock(epoch)))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), token)
	assert.NoError(t, err, "within skew")

	strict := testConfig()
	strict.ClockSkew = 0
	v, err = NewVerifier(strict, WithClock(fixedClock(epoch)))
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestVerify_SubjectFallbackAndNumericID(t *testing.T) {
	t.Parallel()
	_, v := newPair(t)
	key := []byte(testSecret)
	future := epoch.Add(time.Hour).Unix()

	p, err := v.Verify(context.Background(),
		rawToken(t, key, jwa.HS256, map[string]any{"sub": "from-sub", "role": "admin", "exp": future}))
	require.NoError(t, err)
	assert.Equal(t, "from-sub", p.SubjectID)
	assert.Equal(t, auth.RoleAdmin, p.Role)

	p, err = v.Verify(context.Background(),
		rawToken(t, key, jwa.HS256, map[string]any{"userId": 1234567, "role": "user", "exp": future}))
	require.NoError(t, err)
	assert.Equal(t, "1234567", p.SubjectID)
}

func TestVerify_CustomClaimNames(t *testing.T) {
	t.Parallel()

	cfg := ConfigFrom(&config.AuthConfig{
		JWTSecret: testSecret,
		Algorithm: "HS384",
		Claims:    config.ClaimsConfig{Subject: "uid", Role: "grp"},
	})
	assert.Equal(t, "uid", cfg.Claims.Subject)
	assert.Equal(t, "grp", cfg.Claims.Role)
	assert.Equal(t, "name", cfg.Claims.Name)

	s, err := NewSigner(cfg, 0, WithClock(fixedClock(epoch)))
	require.NoError(t, err)
	v, err := NewVerifier(cfg, WithClock(fixedClock(epoch)))
	require.NoError(t, err)

	token, err := s.Sign(&auth.Principal{SubjectID: "u9", Role: auth.RoleEngineer})
	require.NoError(t, err)
	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u9", p.SubjectID)
	assert.Equal(t, auth.RoleEngineer, p.Role)
	assert.True(t, p.ExpiresAt.Equal(epoch.Add(DefaultTokenTTL)))
}

func TestNewVerifier_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewVerifier(nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Secret = nil
	_, err = NewVerifier(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Algorithm = "RS256"
	_, err = NewVerifier(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.ClockSkew = -time.Second
	_, err = NewSigner(cfg, time.Minute)
	assert.Error(t, err)
}

func TestSigner_RejectsInvalidPrincipal(t *testing.T) {
	t.Parallel()
	s, _ := newPair(t)

	_, err := s.Sign(nil)
	assert.Error(t, err)
	_, err = s.Sign(&auth.Principal{Role: auth.RoleUser})
	assert.Error(t, err)
	_, err = s.Sign(&auth.Principal{SubjectID: "u1", Role: "root"})
	assert.Error(t, err)
}

func TestHeaderExtractor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "bearer", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "extra spaces", header: "BEARER   abc  ", want: "abc"},
		{name: "missing", header: "", wantErr: auth.ErrMissingCredential},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantErr: auth.ErrInvalidToken},
		{name: "bare token", header: "abc.def.ghi", wantErr: auth.ErrInvalidToken},
		{name: "scheme only", header: "Bearer", wantErr: auth.ErrMissingCredential},
		{name: "empty token", header: "Bearer    ", wantErr: auth.ErrMissingCredential},
	}

	e := NewHeaderExtractor("", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			got, err := e.Extract(h)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				want := util.CodeUnauthorized
				if tt.wantErr == auth.ErrInvalidToken {
					want = util.CodeInvalidToken
				}
				assert.Equal(t, want, auth.CodeFor(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
