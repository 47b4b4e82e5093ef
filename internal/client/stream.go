package client

import (
	"context"
	"io"
	"net/url"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/gorilla/websocket"
)

// Subscribe opens the event stream. serverID may be empty for all servers.
// The channel closes when ctx ends or the connection drops.
func (c *Client) Subscribe(ctx context.Context, serverID string) (<-chan monitor.Event, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/events"
	if serverID != "" {
		u.RawQuery = url.Values{"server": {serverID}}.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			defer resp.Body.Close()
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, decodeError(resp.StatusCode, raw)
		}
		return nil, errors.WrapWithCode(err, errors.ErrTransient,
			"Can't open the event stream at "+c.base.Host,
			"Start the server with 'fleetmon serve' or pass --server")
	}

	out := make(chan monitor.Event, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var ev monitor.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
