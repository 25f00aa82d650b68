package calbot

import (
	"context"
	"time"
)

// Token is the result of one OAuth refresh. RefreshToken is empty when the
// provider did not rotate it, in which case the stored one stays valid.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenRefresher exchanges a refresh token for a fresh access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}
