// Package matrix delivers reminder messages to Matrix rooms over the
// client-server HTTP API.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"calbot-go/internal/calbot"
)

const requestTimeout = 15 * time.Second

// Client posts messages as a bot user authenticated by a static access
// token. Before each send it joins the target room: joining an
// already-joined room is a no-op on the homeserver, and the join response
// resolves room aliases to room IDs.
type Client struct {
	homeserverURL string
	accessToken   string
	client        *http.Client
	logger        calbot.Logger
}

var _ calbot.Messenger = (*Client)(nil)

func NewClient(homeserverURL, accessToken string, logger calbot.Logger) *Client {
	return &Client{
		homeserverURL: strings.TrimRight(homeserverURL, "/"),
		accessToken:   accessToken,
		client:        &http.Client{Timeout: requestTimeout},
		logger:        logger,
	}
}

type joinResponse struct {
	RoomID string `json:"room_id"`
}

type messageEvent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// Send delivers one message to a room. Failures wrap ErrDeliveryFailed so
// the dispatcher records nothing and retries on a later tick.
func (c *Client) Send(ctx context.Context, roomID string, msg *calbot.Message) error {
	resolved, err := c.join(ctx, roomID)
	if err != nil {
		return err
	}

	ev := messageEvent{MsgType: "m.text", Body: msg.Plain}
	if msg.HTML != "" {
		ev.Format = "org.matrix.custom.html"
		ev.FormattedBody = msg.HTML
	}

	sendURL := fmt.Sprintf("%s/_matrix/client/r0/rooms/%s/send/m.room.message",
		c.homeserverURL, url.PathEscape(resolved))
	if err := c.post(ctx, sendURL, ev, nil); err != nil {
		return err
	}

	c.logger.Info("message sent", "room_id", resolved)
	return nil
}

func (c *Client) join(ctx context.Context, room string) (string, error) {
	joinURL := fmt.Sprintf("%s/_matrix/client/r0/join/%s", c.homeserverURL, url.PathEscape(room))

	var out joinResponse
	if err := c.post(ctx, joinURL, struct{}{}, &out); err != nil {
		return "", fmt.Errorf("joining room %s: %w", room, err)
	}
	if out.RoomID == "" {
		return room, nil
	}
	return out.RoomID, nil
}

func (c *Client) post(ctx context.Context, rawURL string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %v", calbot.ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", calbot.ErrDeliveryFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", calbot.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %s", calbot.ErrDeliveryFailed, req.URL.Path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", calbot.ErrDeliveryFailed, err)
		}
		return nil
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
