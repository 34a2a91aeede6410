package evi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eli-ai/eli-backend/internal/config"
	evimodel "github.com/eli-ai/eli-backend/internal/model/evi"
)

var (
	// ErrUnavailable means the EVI handshake was refused or timed out.
	ErrUnavailable = errors.New("evi: upstream unavailable")
	// ErrSend means the socket is no longer writable.
	ErrSend = errors.New("evi: send failed")
)

// Client dials the Hume EVI chat endpoint.
type Client struct {
	cfg    config.HumeConfig
	dialer *websocket.Dialer
}

// NewClient builds an EVI client from the upstream configuration.
func NewClient(cfg config.HumeConfig) *Client {
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Connect opens one EVI chat socket. The analysis configuration
// (config id and transcript granularity) is fixed at handshake time.
func (c *Client) Connect(ctx context.Context) (*Socket, error) {
	endpoint, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrUnavailable, err)
	}

	query := endpoint.Query()
	query.Set("api_key", c.cfg.APIKey)
	query.Set("granularity", c.cfg.Granularity)
	if c.cfg.ConfigID != "" {
		query.Set("config_id", c.cfg.ConfigID)
	}
	endpoint.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Socket{conn: conn, idle: c.cfg.IdleTimeout}, nil
}

// Socket is one open EVI chat connection. The relay's inbound pump is
// the only writer and the outbound pump the only reader; Close is the
// single exception and is safe from any goroutine.
type Socket struct {
	conn      *websocket.Conn
	idle      time.Duration
	closeOnce sync.Once
}

// SendInput forwards one text utterance upstream.
func (s *Socket) SendInput(text string) error {
	if err := s.conn.WriteJSON(evimodel.NewUserInput(text)); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	return nil
}

// Next blocks for the next upstream message. A clean close is reported
// as io.EOF; any other failure is returned as-is. The sequence is not
// restartable.
func (s *Socket) Next() (*evimodel.Message, error) {
	if s.idle > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
	}

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}

	return evimodel.Parse(data)
}

// Close releases the socket. Safe to call from any goroutine and more
// than once; later calls are no-ops.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}
