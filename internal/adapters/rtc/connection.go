package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/RoboCast/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrTransportClosed = errors.New("transport closed")

const DefaultSTUN = "stun:stun.l.google.com:19302"

func DefaultWebRTCConfig() webrtc.Configuration {
	return ConfigFor([]string{DefaultSTUN})
}

// ConfigFor builds a configuration with one ICE server entry per url.
func ConfigFor(urls []string) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	for _, u := range urls {
		if u == "" {
			continue
		}
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{URLs: []string{u}})
	}
	return cfg
}

// Factory creates pion backed transports sharing one configuration.
type Factory struct {
	Config webrtc.Configuration
	Label  string
}

func NewFactory(iceServers []string, label string) *Factory {
	return &Factory{Config: ConfigFor(iceServers), Label: label}
}

func (f *Factory) NewTransport(h core.TransportHandlers) (core.PeerTransport, error) {
	return NewWebRTCConnection(f.Config, f.Label, h)
}

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	label  string
	h      core.TransportHandlers
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func NewWebRTCConnection(cfg webrtc.Configuration, label string, h core.TransportHandlers) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &WebRTCConnection{pc: pc, label: label, h: h, ctx: ctx, cancel: cancel}
	c.start()
	return c, nil
}

func (c *WebRTCConnection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("peer", c.label).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", c.label).Str("peer_connection_state", s.String()).Msg("Peer state")
		st := MapState(s)
		if st.Terminal() {
			c.cancel()
		}
		if c.h.OnStateChange != nil {
			c.h.OnStateChange(st)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.h.OnICECandidate != nil {
			c.h.OnICECandidate(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", c.label).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.h.OnTrack != nil {
			c.h.OnTrack(c.ctx, track, receiver)
		}
	})
}

// MapState translates pion's aggregate connection state.
func MapState(s webrtc.PeerConnectionState) core.TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return core.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return core.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return core.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return core.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return core.TransportClosed
	default:
		return core.TransportNew
	}
}

func (c *WebRTCConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// AttachMedia adds the source tracks and drains RTCP for each sender.
func (c *WebRTCConnection) AttachMedia(src core.MediaSource) error {
	if c.isClosed() {
		return ErrTransportClosed
	}
	for _, track := range src.Tracks() {
		sender, err := c.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add track %s: %w", track.ID(), err)
		}
		go drainRTCP(sender)
	}
	return nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) CreateAndSetOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	if c.isClosed() {
		return nil, ErrTransportClosed
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local offer: %w", err)
	}
	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) ApplyRemote(desc webrtc.SessionDescription) error {
	if c.isClosed() {
		return ErrTransportClosed
	}
	return c.pc.SetRemoteDescription(desc)
}

func (c *WebRTCConnection) CreateAndSetAnswer(ctx context.Context) (*webrtc.SessionDescription, error) {
	if c.isClosed() {
		return nil, ErrTransportClosed
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local answer: %w", err)
	}
	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	if c.isClosed() {
		return ErrTransportClosed
	}
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) RoundTripTime() (time.Duration, bool) {
	if c.isClosed() {
		return 0, false
	}
	return SelectedPairRTT(c.pc.GetStats())
}

// SelectedPairRTT reads the current RTT of the nominated candidate pair,
// falling back to any succeeded pair that has a measurement.
func SelectedPairRTT(report webrtc.StatsReport) (time.Duration, bool) {
	var fallback float64
	for _, s := range report {
		pair, ok := s.(webrtc.ICECandidatePairStats)
		if !ok || pair.CurrentRoundTripTime <= 0 {
			continue
		}
		if pair.Nominated {
			return seconds(pair.CurrentRoundTripTime), true
		}
		if pair.State == webrtc.StatsICECandidatePairStateSucceeded && fallback == 0 {
			fallback = pair.CurrentRoundTripTime
		}
	}
	if fallback > 0 {
		return seconds(fallback), true
	}
	return 0, false
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (c *WebRTCConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", c.label).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("peer", c.label).Msg("closed")
	return nil
}
