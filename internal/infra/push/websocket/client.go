package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"

	"rentsync/internal/domain/requests"
	"rentsync/internal/infra/wire"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
	maxFrame   = 1 << 20
)

// Publisher receives decoded events. push.Hub implements it.
type Publisher interface {
	Publish(ctx context.Context, ev requests.RealtimeEvent)
	SetConnected(up bool)
}

// Client keeps one websocket connection to the backend's event endpoint and
// republishes lifecycle frames. Other frame types are ignored.
type Client struct {
	URL       string
	Token     string
	Reconnect time.Duration
	Dialer    *ws.Dialer
	Publisher Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// Run connects and reads until ctx is done, reconnecting after Reconnect.
func (c *Client) Run(ctx context.Context) error {
	if c.Publisher == nil {
		return errors.New("websocket: publisher required")
	}
	delay := c.Reconnect
	if delay <= 0 {
		delay = 3 * time.Second
	}
	for {
		err := c.runOnce(ctx)
		c.Publisher.SetConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.Logger != nil {
			c.Logger.Warn("push connection lost", "url", c.URL, "error", err, "retry_in", delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	dialer := c.Dialer
	if dialer == nil {
		dialer = ws.DefaultDialer
	}
	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}
	conn, _, err := dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.Publisher.SetConnected(true)
	if c.Logger != nil {
		c.Logger.Info("push connected", "url", c.URL)
	}

	done := make(chan struct{})
	defer close(done)
	go c.keepAlive(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handle(ctx, data)
	}
}

func (c *Client) keepAlive(ctx context.Context, conn *ws.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	ev, _, err := wire.DecodeFrame(data, c.now())
	if err != nil {
		if !errors.Is(err, wire.ErrUnknownEvent) && c.Logger != nil {
			c.Logger.Warn("push frame dropped", "error", err)
		}
		return
	}
	c.Publisher.Publish(ctx, ev)
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}
