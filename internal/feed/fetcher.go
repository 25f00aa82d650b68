// Package feed implements the HTTP feed fetcher.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"calbot-go/internal/calbot"
)

const defaultTimeout = 15 * time.Second

// Fetcher retrieves raw feed bodies over HTTP. It performs no retries and
// keeps no cache; retry policy lives in the sync layer.
type Fetcher struct {
	client *http.Client
	logger calbot.Logger
}

var _ calbot.FeedFetcher = (*Fetcher)(nil)

func NewFetcher(timeout time.Duration, logger calbot.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Fetch performs one GET and maps the outcome onto the fetch sentinels:
// 401/403 to ErrUnauthorized, 404/410 to ErrNotFound, deadline expiry to
// ErrTimeout, everything else to ErrTransport.
func (f *Fetcher) Fetch(ctx context.Context, freq *calbot.FeedRequest) ([]byte, error) {
	if freq.URL == "" {
		return nil, fmt.Errorf("%w: empty feed URL", calbot.ErrTransport)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, freq.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", calbot.ErrTransport, err)
	}
	switch freq.Credential.Kind {
	case calbot.CredentialBasic:
		req.SetBasicAuth(freq.Credential.User, freq.Credential.Password)
	case calbot.CredentialBearer:
		req.Header.Set("Authorization", "Bearer "+freq.Credential.Token)
	}

	f.logger.Debug("feed fetch start", "url", redactURL(freq.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		var nerr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
			return nil, fmt.Errorf("%w: %v", calbot.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", calbot.ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: reading body: %v", calbot.ErrTransport, err)
		}
		f.logger.Debug("feed fetch done", "url", redactURL(freq.URL), "bytes", len(body))
		return body, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", calbot.ErrUnauthorized, resp.Status)
	case http.StatusNotFound, http.StatusGone:
		return nil, fmt.Errorf("%w: %s", calbot.ErrNotFound, resp.Status)
	default:
		return nil, fmt.Errorf("%w: %s", calbot.ErrTransport, resp.Status)
	}
}

// redactURL hides the path and query of a feed URL for logging. Private
// feed URLs routinely embed tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
