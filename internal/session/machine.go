// Package session drives one client connection: its role, its peer transport
// and the negotiation with a single remote peer.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/protocol"
)

var (
	ErrNotIdle = errors.New("session is not idle")
	ErrBusy    = errors.New("event queue full")
	ErrStopped = errors.New("session stopped")
	ErrClosed  = errors.New("session machine closed")
)

const defaultQueue = 256

// Signaler sends frames to the relay server. Send must not block.
type Signaler interface {
	Send(msg protocol.Message) error
}

type Options struct {
	StatsInterval time.Duration
	// AutoSelect picks the first listed broadcaster while selecting.
	AutoSelect bool
	// OnTrack receives remote media in viewer mode.
	OnTrack func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	// OnChange observes the state after each dispatched event.
	OnChange func(State)
}

type Machine struct {
	sig      Signaler
	factory  core.TransportFactory
	capturer core.Capturer
	opts     Options
	logger   zerolog.Logger

	events chan Event
	done   chan struct{}
	once   sync.Once

	mu            sync.RWMutex
	state         State
	transport     core.PeerTransport
	media         core.MediaSource
	sampler       *sampler
	attemptCtx    context.Context
	attemptCancel context.CancelFunc
	result        chan<- error

	// spawn runs suspension points off the event loop.
	spawn func(func())
}

func NewMachine(sig Signaler, factory core.TransportFactory, capturer core.Capturer, opts Options) *Machine {
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}
	return &Machine{
		sig:      sig,
		factory:  factory,
		capturer: capturer,
		opts:     opts,
		logger:   log.With().Str("module", "session").Logger(),
		events:   make(chan Event, defaultQueue),
		done:     make(chan struct{}),
		spawn:    func(f func()) { go f() },
	}
}

// Run processes events until ctx is cancelled, then tears down.
func (m *Machine) Run(ctx context.Context) error {
	defer m.once.Do(func() { close(m.done) })
	for {
		select {
		case <-ctx.Done():
			m.Dispatch(Stop{})
			return ctx.Err()
		case ev := <-m.events:
			m.Dispatch(ev)
		}
	}
}

// Post queues an event without blocking.
func (m *Machine) Post(ev Event) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.events <- ev:
		return nil
	default:
		return ErrBusy
	}
}

// Enqueue queues an event, waiting for room.
func (m *Machine) Enqueue(ctx context.Context, ev Event) error {
	select {
	case m.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

func (m *Machine) post(ev Event) {
	_ = m.Enqueue(context.Background(), ev)
}

func (m *Machine) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// Dispatch applies one event synchronously.
func (m *Machine) Dispatch(ev Event) {
	m.mu.Lock()
	m.handle(ev)
	snap := m.state.clone()
	m.mu.Unlock()

	if m.opts.OnChange != nil {
		m.opts.OnChange(snap)
	}
}

func (m *Machine) handle(ev Event) {
	switch e := ev.(type) {
	case StartBroadcast:
		m.onStartBroadcast(e)
	case StartViewing:
		m.onStartViewing()
	case Select:
		m.onSelect(e.ID)
	case ViewAny:
		m.onViewAny()
	case Stop:
		m.onStop()
	case RefreshBroadcasters:
		m.send(protocol.Message{Type: protocol.TypeListBroadcasters})
	case SignalLost:
		m.logger.Warn().Msg("signaling lost")
		m.teardown()
		m.state.Online = false
		m.state.LocalID = ""
		m.state.Broadcasters = nil
	case Inbound:
		m.onInbound(e.Msg)
	case mediaAcquired:
		m.onMediaAcquired(e)
	case offerReady:
		m.onOfferReady(e)
	case answerReady:
		m.onAnswerReady(e)
	case localCandidate:
		m.onLocalCandidate(e)
	case transportState:
		m.onTransportState(e)
	case latencySample:
		if e.gen == m.state.Generation && m.state.Stage == StageConnected {
			m.state.RTT = e.rtt
		}
	default:
		m.logger.Warn().Type("event", ev).Msg("unknown event")
	}
}

func (m *Machine) send(msg protocol.Message) {
	if err := m.sig.Send(msg); err != nil {
		m.logger.Warn().Err(err).Str("type", string(msg.Type)).Msg("signal send failed")
	}
}

func (m *Machine) settle(err error) {
	if m.result == nil {
		return
	}
	select {
	case m.result <- err:
	default:
	}
	m.result = nil
}

func (m *Machine) fail(err error) {
	m.logger.Error().Err(err).Str("phase", m.state.Phase.String()).Msg("session error")
	m.state.LastError = err.Error()
}

// newAttempt bumps the generation and returns a context cancelled on teardown.
func (m *Machine) newAttempt() uint64 {
	if m.attemptCancel != nil {
		m.attemptCancel()
	}
	m.attemptCtx, m.attemptCancel = context.WithCancel(context.Background())
	m.state.Generation++
	m.state.RemoteID = ""
	m.state.Pending = nil
	m.state.Outbox = nil
	m.state.Solicited = nil
	m.state.RemoteDescriptionSet = false
	m.state.LocalDescriptionSent = false
	m.state.RTT = 0
	return m.state.Generation
}

func (m *Machine) openTransport(gen uint64) error {
	m.closeTransport()
	t, err := m.factory.NewTransport(core.TransportHandlers{
		OnICECandidate: func(c webrtc.ICECandidateInit) { m.post(localCandidate{gen: gen, c: c}) },
		OnStateChange:  func(st core.TransportState) { m.post(transportState{gen: gen, st: st}) },
		OnTrack:        m.opts.OnTrack,
	})
	if err != nil {
		return err
	}
	m.transport = t
	return nil
}

func (m *Machine) closeTransport() {
	m.stopSampler()
	if m.transport == nil {
		return
	}
	if err := m.transport.Close(); err != nil {
		m.logger.Debug().Err(err).Msg("close transport")
	}
	m.transport = nil
}

func (m *Machine) stopSampler() {
	if m.sampler != nil {
		m.sampler.stop()
		m.sampler = nil
	}
}

// teardown returns to idle from any state. Safe to repeat.
func (m *Machine) teardown() {
	m.closeTransport()
	if m.media != nil {
		m.media.Stop()
		m.media = nil
	}
	if m.attemptCancel != nil {
		m.attemptCancel()
		m.attemptCancel = nil
	}
	m.settle(ErrStopped)

	wasActive := m.state.Phase != PhaseIdle
	m.state.Generation++
	m.state.Phase = PhaseIdle
	m.state.Stage = StageNone
	m.state.RemoteID = ""
	m.state.Pending = nil
	m.state.Outbox = nil
	m.state.Solicited = nil
	m.state.RemoteDescriptionSet = false
	m.state.LocalDescriptionSent = false
	m.state.RTT = 0
	if wasActive {
		m.logger.Info().Uint64("gen", m.state.Generation).Msg("session torn down")
	}
}

func (m *Machine) onStop() {
	if m.state.Active() && m.state.RemoteID != "" {
		m.send(protocol.Message{Type: protocol.TypeStop, To: m.state.RemoteID})
	}
	if m.state.Phase == PhaseViewer {
		for _, id := range m.state.Solicited {
			if id != m.state.RemoteID {
				m.send(protocol.Message{Type: protocol.TypeStop, To: id})
			}
		}
	}
	m.teardown()
}

func (m *Machine) onStartBroadcast(e StartBroadcast) {
	if m.state.Phase != PhaseIdle {
		if e.Result != nil {
			select {
			case e.Result <- ErrNotIdle:
			default:
			}
		}
		return
	}
	m.result = e.Result
	gen := m.newAttempt()
	m.state.Phase = PhaseBroadcaster
	m.state.Stage = StageAcquiringMedia
	m.state.LastError = ""

	ctx, capturer := m.attemptCtx, m.capturer
	m.spawn(func() {
		src, err := capturer.Capture(ctx)
		m.post(mediaAcquired{gen: gen, src: src, err: err})
	})
}

func (m *Machine) onMediaAcquired(e mediaAcquired) {
	if e.gen != m.state.Generation || m.state.Phase != PhaseBroadcaster || m.state.Stage != StageAcquiringMedia {
		if e.src != nil {
			e.src.Stop()
		}
		return
	}
	if e.err != nil {
		m.fail(e.err)
		m.settle(e.err)
		m.teardown()
		return
	}
	m.media = e.src
	if err := m.armBroadcaster(); err != nil {
		m.fail(err)
		m.settle(err)
		m.teardown()
		return
	}
	m.send(protocol.Message{Type: protocol.TypeBroadcaster})
	m.settle(nil)
}

// armBroadcaster prepares a fresh transport carrying the held media.
func (m *Machine) armBroadcaster() error {
	gen := m.newAttempt()
	if err := m.openTransport(gen); err != nil {
		return err
	}
	if err := m.transport.AttachMedia(m.media); err != nil {
		return err
	}
	m.state.Stage = StageAwaitingPeer
	m.logger.Info().Uint64("gen", gen).Msg("broadcaster awaiting viewer")
	return nil
}

// rearm keeps broadcasting after the current viewer went away.
func (m *Machine) rearm() {
	if err := m.armBroadcaster(); err != nil {
		m.fail(err)
		m.teardown()
	}
}

func (m *Machine) onStartViewing() {
	if m.state.Active() {
		m.onStop()
	}
	m.state.Phase = PhaseSelecting
	m.state.Stage = StageNone
	m.send(protocol.Message{Type: protocol.TypeListBroadcasters})
}

func (m *Machine) onSelect(id string) {
	if m.state.Phase != PhaseSelecting || id == "" {
		m.logger.Debug().Str("phase", m.state.Phase.String()).Str("id", id).Msg("select ignored")
		return
	}
	gen := m.newAttempt()
	if err := m.openTransport(gen); err != nil {
		m.fail(err)
		m.teardown()
		return
	}
	m.state.Phase = PhaseViewer
	m.state.Stage = StageNegotiating
	m.state.RemoteID = id
	m.state.LastError = ""
	m.send(protocol.Message{Type: protocol.TypeViewer, To: id})
	m.logger.Info().Str("remote", id).Uint64("gen", gen).Msg("viewer requested broadcaster")
}

func (m *Machine) onViewAny() {
	if m.state.Phase != PhaseIdle && m.state.Phase != PhaseSelecting {
		return
	}
	gen := m.newAttempt()
	if err := m.openTransport(gen); err != nil {
		m.fail(err)
		m.teardown()
		return
	}
	m.state.Phase = PhaseViewer
	m.state.Stage = StageNegotiating
	m.state.LastError = ""
	for _, id := range m.state.Broadcasters {
		m.solicit(id)
	}
	m.send(protocol.Message{Type: protocol.TypeViewer})
}
