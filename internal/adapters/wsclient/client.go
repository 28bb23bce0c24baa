// Package wsclient keeps the client's signaling channel to the relay open.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/RoboCast/internal/protocol"
)

var (
	ErrNotConnected = errors.New("signaling not connected")
	ErrBackpressure = errors.New("signaling send buffer full")
)

type Options struct {
	DialTimeout    time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	url       string
	opts      Options
	onMessage func(protocol.Message)
	onLost    func()

	mu   sync.Mutex
	send chan []byte
}

// New creates a client for url. onMessage gets every decoded frame,
// onLost is called each time an established connection drops.
func New(url string, opts Options, onMessage func(protocol.Message), onLost func()) *Client {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 5 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 800 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	return &Client{url: url, opts: opts, onMessage: onMessage, onLost: onLost}
}

func (c *Client) defaultBackoff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     c.opts.InitialBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         c.opts.MaxBackoff,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)
}

// Send queues msg on the current connection without blocking.
func (c *Client) Send(msg protocol.Message) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

// Connected reports whether a signaling connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send != nil
}

// Run connects and reconnects until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	b := c.defaultBackoff(ctx)
	operation := func() error {
		conn, err := c.dial(ctx)
		if err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Str("url", c.url).Msg("dial signaling")
			return err
		}
		log.Info().Str("module", "wsclient").Str("url", c.url).Msg("connected to signaling")

		err = c.serve(ctx, conn)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		log.Warn().Err(err).Str("module", "wsclient").Msg("signaling disconnected")
		if c.onLost != nil {
			c.onLost()
		}
		b.Reset()
		return err
	}
	return backoff.Retry(operation, b)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}
	conn, _, err := dialer.DialContext(dctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	return conn, nil
}

// serve pumps one connection until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	send := make(chan []byte, c.opts.SendBuffer)
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()
	go func() {
		defer wg.Done()
		c.writePump(conn, send, stop)
	}()

	err := c.readPump(conn)

	c.mu.Lock()
	c.send = nil
	close(send)
	c.mu.Unlock()
	close(stop)
	wg.Wait()
	return err
}

func (c *Client) readPump(conn *websocket.Conn) error {
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.TextMessage {
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("bad frame from server")
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, send <-chan []byte, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case b, ok := <-send:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Warn().Err(err).Str("module", "wsclient").Msg("write failed")
				_ = conn.Close()
				return
			}
		}
	}
}
