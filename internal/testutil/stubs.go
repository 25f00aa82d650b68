package testutil

import (
	"context"
	"sync"

	"calbot-go/internal/calbot"
)

// StubFetcher serves canned feed bodies keyed by URL and records every
// request it sees. Safe for concurrent use.
type StubFetcher struct {
	mu       sync.Mutex
	bodies   map[string][]byte
	errs     map[string]error
	errsOnce map[string]error
	requests []calbot.FeedRequest
}

// NewStubFetcher creates an empty StubFetcher. Unknown URLs return
// calbot.ErrNotFound.
func NewStubFetcher() *StubFetcher {
	return &StubFetcher{
		bodies:   make(map[string][]byte),
		errs:     make(map[string]error),
		errsOnce: make(map[string]error),
	}
}

// SetBody registers the response body for a URL.
func (f *StubFetcher) SetBody(url string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
	delete(f.errs, url)
}

// SetError makes every fetch of the URL fail with err.
func (f *StubFetcher) SetError(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

// SetErrorOnce makes the next fetch of the URL fail with err, after which
// the registered body is served again.
func (f *StubFetcher) SetErrorOnce(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errsOnce[url] = err
}

func (f *StubFetcher) Fetch(_ context.Context, req *calbot.FeedRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, *req)

	if err, ok := f.errsOnce[req.URL]; ok {
		delete(f.errsOnce, req.URL)
		return nil, err
	}
	if err, ok := f.errs[req.URL]; ok {
		return nil, err
	}
	if body, ok := f.bodies[req.URL]; ok {
		return append([]byte(nil), body...), nil
	}
	return nil, calbot.ErrNotFound
}

// Requests returns a copy of every request seen so far.
func (f *StubFetcher) Requests() []calbot.FeedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calbot.FeedRequest(nil), f.requests...)
}

// SentMessage is one message captured by StubMessenger.
type SentMessage struct {
	RoomID  string
	Message calbot.Message
}

// StubMessenger records sent messages. Safe for concurrent use.
type StubMessenger struct {
	mu   sync.Mutex
	sent []SentMessage
	err  error
}

// NewStubMessenger creates a StubMessenger that accepts every message.
func NewStubMessenger() *StubMessenger {
	return &StubMessenger{}
}

// SetError makes every send fail with err until cleared with SetError(nil).
func (m *StubMessenger) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *StubMessenger) Send(_ context.Context, roomID string, msg *calbot.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, SentMessage{RoomID: roomID, Message: *msg})
	return nil
}

// Sent returns a copy of every message delivered so far.
func (m *StubMessenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// StubRefresher returns a canned token and records the refresh tokens it
// was handed. Safe for concurrent use.
type StubRefresher struct {
	mu    sync.Mutex
	token *calbot.Token
	err   error
	calls []string
}

// NewStubRefresher creates a StubRefresher that fails until SetToken is called.
func NewStubRefresher() *StubRefresher {
	return &StubRefresher{err: calbot.ErrUnauthorized}
}

// SetToken makes every refresh succeed with token.
func (r *StubRefresher) SetToken(token *calbot.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
	r.err = nil
}

// SetError makes every refresh fail with err.
func (r *StubRefresher) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *StubRefresher) Refresh(_ context.Context, refreshToken string) (*calbot.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, refreshToken)
	if r.err != nil {
		return nil, r.err
	}
	token := *r.token
	return &token, nil
}

// Calls returns a copy of the refresh tokens passed to Refresh.
func (r *StubRefresher) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Compile-time checks
var (
	_ calbot.FeedFetcher    = (*StubFetcher)(nil)
	_ calbot.Messenger      = (*StubMessenger)(nil)
	_ calbot.TokenRefresher = (*StubRefresher)(nil)
)
