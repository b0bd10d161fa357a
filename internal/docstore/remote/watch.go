package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/GolferGeek/sync-focus/internal/docstore"
)

func (c *Client) WatchDocument(ctx context.Context, collection, id string) (*docstore.Subscription, error) {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, docstore.ErrInvalid
	}
	return c.watch(ctx, collection+"/"+id, docstore.Query{})
}

func (c *Client) WatchCollection(ctx context.Context, collection string, q docstore.Query) (*docstore.Subscription, error) {
	if err := docstore.ValidatePath(collection, ""); err != nil {
		return nil, err
	}
	return c.watch(ctx, collection, q)
}

// watch opens one websocket per subscription. The subscription ends when the
// connection drops; callers resubscribe if they want to continue.
func (c *Client) watch(ctx context.Context, path string, q docstore.Query) (*docstore.Subscription, error) {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.baseURL.Path + "/api/watch"
	values := queryValues(q)
	values.Set("path", path)
	u.RawQuery = values.Encode()

	header := http.Header{}
	if token := c.bearer(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, decodeError(resp.StatusCode, body)
		}
		return nil, fmt.Errorf("dial watch %s: %w", path, err)
	}

	sub := docstore.NewSubscription(ctx, func() {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	})
	go c.readSnapshots(conn, sub, path)

	c.logger.Debug().Str("path", path).Msg("watch opened")
	return sub, nil
}

func (c *Client) readSnapshots(conn *websocket.Conn, sub *docstore.Subscription, path string) {
	defer sub.Close()
	for {
		var snap docstore.Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			select {
			case <-sub.Done():
			default:
				c.logger.Warn().Err(err).Str("path", path).Msg("watch connection lost")
			}
			return
		}
		if !sub.Publish(snap) {
			return
		}
	}
}
