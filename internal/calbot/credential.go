package calbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calbot-go/internal/model"
)

// expirySkew widens the expiry check so a token that would lapse mid-fetch
// is refreshed up front.
const expirySkew = 30 * time.Second

// resolveCredential turns a calendar's stored credential material into a
// plaintext Credential for one fetch. For OAuth-backed calendars the bound
// account is returned as well, and a stored token at or past its expiry is
// refreshed before use.
func (s *Service) resolveCredential(ctx context.Context, calendar *model.Calendar) (Credential, *model.OAuthAccount, error) {
	switch {
	case calendar.OAuthAccountID.Valid:
		account, err := s.store.FindOAuthAccount(ctx, calendar.OAuthAccountID.String)
		if err != nil {
			return Credential{}, nil, fmt.Errorf("finding oauth account: %w", err)
		}
		if account == nil {
			return Credential{}, nil, fmt.Errorf("oauth account not found: %s", calendar.OAuthAccountID.String)
		}
		if account.NeedsReauth {
			return Credential{}, nil, fmt.Errorf("oauth account %s: %w", account.ID, ErrNeedsReauth)
		}

		if !s.clock.Now().Add(expirySkew).Before(account.ExpiresAt) {
			token, err := s.refreshAccount(ctx, account)
			if err != nil {
				return Credential{}, nil, err
			}
			return Credential{Kind: CredentialBearer, Token: token}, account, nil
		}

		plain, err := s.sealer.Open(account.AccessToken)
		if err != nil {
			return Credential{}, nil, fmt.Errorf("unsealing access token: %w", err)
		}
		return Credential{Kind: CredentialBearer, Token: string(plain)}, account, nil

	case calendar.BasicAuthUser.Valid:
		password, err := s.sealer.Open(calendar.BasicAuthPassword)
		if err != nil {
			return Credential{}, nil, fmt.Errorf("unsealing feed password: %w", err)
		}
		return Credential{
			Kind:     CredentialBasic,
			User:     calendar.BasicAuthUser.String,
			Password: string(password),
		}, nil, nil

	default:
		return NoCredential(), nil, nil
	}
}

// refreshAccount exchanges the account's refresh token for a fresh access
// token, persists the sealed result, and returns the plaintext access
// token. A rejected refresh marks the account as needing re-authorization
// so subsequent syncs fail fast until a human re-links it.
func (s *Service) refreshAccount(ctx context.Context, account *model.OAuthAccount) (string, error) {
	refreshPlain, err := s.sealer.Open(account.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("unsealing refresh token: %w", err)
	}

	token, err := s.refresher.Refresh(ctx, string(refreshPlain))
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.logger.Warn("refresh token rejected", "account", account.ID)
			if markErr := s.store.MarkOAuthAccountNeedsReauth(ctx, account.ID); markErr != nil {
				s.logger.Error("marking oauth account failed", "account", account.ID, "error", markErr)
			}
			return "", fmt.Errorf("oauth account %s: %w", account.ID, ErrNeedsReauth)
		}
		return "", fmt.Errorf("refreshing token: %w", err)
	}

	sealedAccess, err := s.sealer.Seal([]byte(token.AccessToken))
	if err != nil {
		return "", fmt.Errorf("sealing access token: %w", err)
	}

	// Providers that do not rotate the refresh token return it empty; the
	// stored one stays valid in that case.
	sealedRefresh := account.RefreshToken
	if token.RefreshToken != "" {
		sealedRefresh, err = s.sealer.Seal([]byte(token.RefreshToken))
		if err != nil {
			return "", fmt.Errorf("sealing refresh token: %w", err)
		}
	}

	if err := s.store.UpdateOAuthTokens(ctx, account.ID, sealedAccess, sealedRefresh, token.ExpiresAt, s.clock.Now()); err != nil {
		return "", fmt.Errorf("storing refreshed tokens: %w", err)
	}

	account.AccessToken = sealedAccess
	account.RefreshToken = sealedRefresh
	account.ExpiresAt = token.ExpiresAt

	s.logger.Info("oauth tokens refreshed", "account", account.ID, "rotated", token.RefreshToken != "")
	return token.AccessToken, nil
}
