package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	applogger "SpikeWatch/pkg/logger"

	"github.com/gorilla/websocket"
)

// tick is one executed trade from the stream.
type tick struct {
	Symbol string
	Price  float64
	Volume float64
	At     time.Time
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
	Msg  string    `json:"msg"`
}

// streamClient owns one websocket session against the trades stream.
type streamClient struct {
	apiKey string
	url    string
	l      *applogger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func newStreamClient(apiKey, wsURL string, l *applogger.Logger) *streamClient {
	return &streamClient{apiKey: apiKey, url: wsURL, l: l}
}

func (c *streamClient) connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("stream url: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("token", c.apiKey)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.l.Info("stream connected")
	return nil
}

func (c *streamClient) subscribe(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("stream not connected")
	}
	for _, s := range symbols {
		if err := c.conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.l.Info("stream subscribed", applogger.Int("symbols", len(symbols)))
	return nil
}

// read blocks delivering trades to onTick until the connection fails or ctx ends.
func (c *streamClient) read(ctx context.Context, pingInterval time.Duration, onTick func(tick)) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream not connected")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.close()
		case <-done:
		}
	}()

	if pingInterval > 0 {
		go func() {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					c.mu.Lock()
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
					c.mu.Unlock()
				}
			}
		}()
	}

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream read: %w", err)
		}
		var m wsMessage
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		switch m.Type {
		case "trade":
			for _, d := range m.Data {
				onTick(tick{Symbol: d.S, Price: d.P, Volume: d.V, At: time.UnixMilli(d.T).UTC()})
			}
		case "error":
			c.l.Warn("stream error frame", applogger.String("msg", m.Msg))
		}
	}
}

func (c *streamClient) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
