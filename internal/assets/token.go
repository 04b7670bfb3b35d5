package assets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrTokenExpired is returned when a static bearer token is past its exp claim.
var ErrTokenExpired = errors.New("assets: token expired")

// CredentialsConfig selects how the directory bearer token is obtained.
type CredentialsConfig struct {
	// Token is a pre-issued bearer token, used when AuthURL is empty.
	Token        string
	AuthURL      string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewTokenSource returns a client-credentials source when AuthURL is set,
// otherwise a static source over Token after checking its expiry.
func NewTokenSource(ctx context.Context, cfg CredentialsConfig, now time.Time) (oauth2.TokenSource, error) {
	if cfg.AuthURL != "" {
		if cfg.ClientID == "" {
			return nil, errors.New("assets: client id required for token endpoint")
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.AuthURL,
			Scopes:       cfg.Scopes,
		}
		return cc.TokenSource(ctx), nil
	}
	if cfg.Token == "" {
		return nil, errors.New("assets: token or auth url required")
	}
	expiry, err := TokenExpiry(cfg.Token)
	if err != nil {
		return nil, err
	}
	if !expiry.IsZero() && !now.Before(expiry) {
		return nil, fmt.Errorf("%w at %s", ErrTokenExpired, expiry.UTC().Format(time.RFC3339))
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer", Expiry: expiry}), nil
}

// TokenExpiry reads the exp claim without verifying the signature; the
// directory verifies it. Opaque (non-JWT) tokens have no known expiry.
func TokenExpiry(raw string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(raw, &claims)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("assets: parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
