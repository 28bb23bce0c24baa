// Package client assembles a session client: signaling, state machine,
// peer transports and media.
package client

import (
	"context"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/RoboCast/internal/adapters/robotapi"
	"github.com/dkeye/RoboCast/internal/adapters/rtc"
	"github.com/dkeye/RoboCast/internal/adapters/wsclient"
	"github.com/dkeye/RoboCast/internal/config"
	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/media"
	"github.com/dkeye/RoboCast/internal/protocol"
	"github.com/dkeye/RoboCast/internal/session"
)

type Client struct {
	cfg     *config.ClientConfig
	Machine *session.Machine
	Signal  *wsclient.Client
	API     *robotapi.Client

	mu      sync.Mutex
	waiters map[chan session.State]struct{}
	rec     *media.Recorder
}

// Deps overrides the real transport and capture stack.
type Deps struct {
	Transports core.TransportFactory
	Capturer   core.Capturer
}

func New(cfg *config.ClientConfig, deps Deps) *Client {
	c := &Client{
		cfg:     cfg,
		API:     robotapi.New(cfg.APIURL, cfg.DialTimeout),
		waiters: make(map[chan session.State]struct{}),
	}

	if deps.Transports == nil {
		deps.Transports = rtc.NewFactory(cfg.ICEServers, "client")
	}
	if deps.Capturer == nil {
		deps.Capturer = media.FileCapturer{Path: cfg.MediaPath}
	}

	c.Signal = wsclient.New(cfg.ServerURL, wsclient.Options{DialTimeout: cfg.DialTimeout},
		func(msg protocol.Message) { c.deliver(session.Inbound{Msg: msg}) },
		func() { c.deliver(session.SignalLost{}) },
	)
	c.Machine = session.NewMachine(c.Signal, deps.Transports, deps.Capturer, session.Options{
		StatsInterval: cfg.StatsInterval,
		AutoSelect:    cfg.AutoSelect,
		OnTrack:       c.onTrack,
		OnChange:      c.notify,
	})
	return c
}

// Run drives signaling and the state machine until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Machine.Run(gctx) })
	g.Go(func() error { return c.Signal.Run(gctx) })
	return g.Wait()
}

func (c *Client) deliver(ev session.Event) {
	if err := c.Machine.Enqueue(context.Background(), ev); err != nil {
		log.Debug().Err(err).Str("module", "client").Msg("event dropped")
	}
}

func (c *Client) notify(s session.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.waiters {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Await blocks until the state satisfies pred.
func (c *Client) Await(ctx context.Context, pred func(session.State) bool) (session.State, error) {
	ch := make(chan session.State, 1)
	c.mu.Lock()
	c.waiters[ch] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, ch)
		c.mu.Unlock()
	}()

	if s := c.Machine.Snapshot(); pred(s) {
		return s, nil
	}
	for {
		select {
		case <-ctx.Done():
			return c.Machine.Snapshot(), ctx.Err()
		case s := <-ch:
			if pred(s) {
				return s, nil
			}
		}
	}
}

// Received returns the packet and byte counters of the current recording.
func (c *Client) Received() (packets, bytes uint64) {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec == nil {
		return 0, 0
	}
	return rec.Stats()
}

func (c *Client) onTrack(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	rec := media.NewRecorder()
	if c.cfg.RecordPath != "" && strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeVP8) {
		w, err := media.OpenIVF(c.cfg.RecordPath)
		if err != nil {
			log.Error().Err(err).Str("module", "client").Msg("recording disabled")
		} else {
			rec.AddSink("ivf", media.NewSink(w))
		}
	}
	c.mu.Lock()
	c.rec = rec
	c.mu.Unlock()

	log.Info().Str("module", "client").Str("kind", track.Kind().String()).Str("codec", track.Codec().MimeType).Msg("receiving media")
	rec.Run(ctx, func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	})
}
