package main

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/auth/jwt"
	"github.com/vyrodovalexey/edgegw/internal/config"
)

// issueToken signs a bearer token with the gateway's own secret so routes
// can be exercised without the users service.
func issueToken(cfg *config.GatewayConfig, user, role, ttl string) (string, error) {
	r, err := auth.ParseRole(role)
	if err != nil {
		return "", err
	}
	d, err := time.ParseDuration(ttl)
	if err != nil {
		return "", fmt.Errorf("token ttl: %w", err)
	}
	if d <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", d)
	}

	signer, err := jwt.NewSigner(jwt.ConfigFrom(&cfg.Auth), d)
	if err != nil {
		return "", err
	}
	return signer.Sign(&auth.Principal{SubjectID: user, Role: r})
}
