// Package oauth keeps access tokens for OAuth-backed calendar feeds valid.
package oauth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"calbot-go/internal/calbot"
)

// Refresher exchanges stored refresh tokens at a provider's token endpoint
// using the client credentials from configuration.
type Refresher struct {
	conf   *oauth2.Config
	logger calbot.Logger
}

var _ calbot.TokenRefresher = (*Refresher)(nil)

func NewRefresher(clientID, clientSecret, tokenURL string, logger calbot.Logger) *Refresher {
	return &Refresher{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
		logger: logger,
	}
}

// Refresh exchanges a refresh token for a fresh access token. A provider
// rejection (revoked or invalid grant) wraps ErrUnauthorized so the caller
// can mark the account for re-authorization; network failures stay plain
// and are retried on a later sync. RefreshToken in the result is empty
// when the provider did not rotate it.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*calbot.Token, error) {
	src := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("%w: token endpoint rejected refresh: %v", calbot.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}

	out := &calbot.Token{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.Expiry.UTC(),
	}
	// The library echoes the old refresh token back when the provider did
	// not send a new one.
	if tok.RefreshToken != refreshToken {
		out.RefreshToken = tok.RefreshToken
	}

	r.logger.Debug("access token refreshed", "expires_at", out.ExpiresAt, "rotated", out.RefreshToken != "")
	return out, nil
}
