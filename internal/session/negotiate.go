package session

import (
	"context"
	"slices"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/protocol"
)

func (m *Machine) onInbound(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeWelcome:
		m.state.LocalID = msg.ID
		m.state.Online = true
		m.logger.Info().Str("id", msg.ID).Msg("signaling online")
	case protocol.TypeBroadcastersList:
		m.onBroadcastersList(msg.IDs)
	case protocol.TypeBroadcaster:
		m.onBroadcasterAnnounced(msg.From)
	case protocol.TypeRemoveBroadcaster, protocol.TypePeerDisconnected:
		m.onPeerGone(msg.ID)
	case protocol.TypeViewer:
		m.onViewerRequest(msg)
	case protocol.TypeOffer:
		m.onOffer(msg)
	case protocol.TypeAnswer:
		m.onAnswer(msg)
	case protocol.TypeCandidate:
		m.onRemoteCandidate(msg)
	case protocol.TypeStop:
		m.onRemoteStop(msg.From)
	case protocol.TypeError:
		m.logger.Warn().Str("error", msg.Error).Msg("server rejected frame")
		m.state.LastError = msg.Error
	case protocol.TypePong:
	default:
		m.logger.Debug().Str("type", string(msg.Type)).Msg("ignored frame")
	}
}

func (m *Machine) onBroadcastersList(ids []string) {
	if m.state.Phase != PhaseIdle && m.state.Phase != PhaseSelecting {
		return
	}
	m.state.Broadcasters = slices.Clone(ids)
	m.state.ListVersion++
	if m.state.Phase == PhaseSelecting && m.opts.AutoSelect && len(ids) > 0 {
		m.onSelect(ids[0])
	}
}

func (m *Machine) onBroadcasterAnnounced(id string) {
	switch {
	case m.state.Phase == PhaseSelecting && id != "":
		if !slices.Contains(m.state.Broadcasters, id) {
			m.state.Broadcasters = append(m.state.Broadcasters, id)
		}
		if m.opts.AutoSelect {
			m.onSelect(id)
		}
	case m.state.Phase == PhaseViewer && m.state.RemoteID == "":
		m.solicit(id)
		m.send(protocol.Message{Type: protocol.TypeViewer})
	}
}

// solicit remembers a broadcaster that may answer an untargeted viewer request.
func (m *Machine) solicit(id string) {
	if id != "" && !slices.Contains(m.state.Solicited, id) {
		m.state.Solicited = append(m.state.Solicited, id)
	}
}

// onRemoteStop ends the attempt with the remote that sent it. A broadcaster
// keeps its media and waits for the next viewer.
func (m *Machine) onRemoteStop(from string) {
	if !m.state.Active() || from == "" || from != m.state.RemoteID {
		return
	}
	switch m.state.Phase {
	case PhaseBroadcaster:
		m.logger.Info().Str("remote", from).Msg("stop from viewer, re-arming")
		m.rearm()
	case PhaseViewer:
		m.logger.Info().Str("remote", from).Msg("stop from broadcaster")
		m.teardown()
	}
}

func (m *Machine) onPeerGone(id string) {
	if id == "" {
		return
	}
	gone := func(s string) bool { return s == id }
	m.state.Solicited = slices.DeleteFunc(m.state.Solicited, gone)
	if m.state.Phase == PhaseSelecting {
		m.state.Broadcasters = slices.DeleteFunc(m.state.Broadcasters, gone)
		return
	}
	if id != m.state.RemoteID {
		return
	}
	switch m.state.Phase {
	case PhaseViewer:
		m.logger.Info().Str("remote", id).Msg("broadcaster departed")
		m.teardown()
	case PhaseBroadcaster:
		m.logger.Info().Str("remote", id).Msg("viewer departed, re-arming")
		m.rearm()
	}
}

// onViewerRequest accepts one viewer at a time; others are told to stop.
// A targeted request from the current viewer restarts the negotiation, an
// untargeted one is a legacy discovery repeat and changes nothing.
func (m *Machine) onViewerRequest(msg protocol.Message) {
	from, targeted := msg.From, msg.To != ""
	if from == "" {
		return
	}
	if m.state.Phase != PhaseBroadcaster || m.state.Stage == StageAcquiringMedia {
		if targeted {
			m.logger.Info().Str("viewer", from).Str("phase", m.state.Phase.String()).Msg("not broadcasting, refusing viewer")
			m.send(protocol.Message{Type: protocol.TypeStop, To: from})
		}
		return
	}
	switch m.state.Stage {
	case StageAwaitingPeer:
	case StageNegotiating, StageConnected:
		if from != m.state.RemoteID {
			m.logger.Info().Str("viewer", from).Str("remote", m.state.RemoteID).Msg("rejecting second viewer")
			m.send(protocol.Message{Type: protocol.TypeStop, To: from})
			return
		}
		if !targeted {
			return
		}
		m.logger.Info().Str("viewer", from).Msg("viewer asked again, restarting negotiation")
		if err := m.armBroadcaster(); err != nil {
			m.fail(err)
			m.teardown()
			return
		}
	default:
		return
	}

	m.state.RemoteID = from
	m.state.Stage = StageNegotiating
	gen, t, ctx := m.state.Generation, m.transport, m.attemptCtx
	m.logger.Info().Str("viewer", from).Uint64("gen", gen).Msg("creating offer")
	m.spawn(func() {
		desc, err := t.CreateAndSetOffer(ctx)
		m.post(offerReady{gen: gen, desc: desc, err: err})
	})
}

func (m *Machine) onOffer(msg protocol.Message) {
	if m.state.Phase == PhaseBroadcaster || msg.From == "" {
		return
	}
	if m.state.Phase != PhaseViewer || (msg.From != m.state.RemoteID && m.state.RemoteID != "") {
		m.declineOffer(msg.From)
		return
	}
	if m.state.Stage != StageNegotiating || m.state.RemoteDescriptionSet {
		m.logger.Debug().Str("from", msg.From).Str("stage", m.state.Stage.String()).Msg("offer dropped")
		return
	}
	if m.state.RemoteID == "" {
		m.solicit(msg.From)
		m.state.RemoteID = msg.From
	}
	desc, err := msg.Description()
	if err == nil {
		err = m.transport.ApplyRemote(desc)
	}
	if err != nil {
		m.fail(err)
		m.onStop()
		return
	}
	m.state.RemoteDescriptionSet = true
	m.flushPending()

	gen, t, ctx := m.state.Generation, m.transport, m.attemptCtx
	m.spawn(func() {
		desc, err := t.CreateAndSetAnswer(ctx)
		m.post(answerReady{gen: gen, desc: desc, err: err})
	})
}

// declineOffer tells a broadcaster we are not going to answer, so it can
// serve another viewer.
func (m *Machine) declineOffer(from string) {
	m.logger.Debug().Str("from", from).Str("phase", m.state.Phase.String()).Msg("declining offer")
	m.send(protocol.Message{Type: protocol.TypeStop, To: from})
}

func (m *Machine) onAnswer(msg protocol.Message) {
	if m.state.Phase != PhaseBroadcaster || m.state.Stage != StageNegotiating ||
		msg.From != m.state.RemoteID || m.state.RemoteDescriptionSet {
		return
	}
	desc, err := msg.Description()
	if err == nil {
		err = m.transport.ApplyRemote(desc)
	}
	if err != nil {
		m.fail(err)
		m.send(protocol.Message{Type: protocol.TypeStop, To: m.state.RemoteID})
		m.rearm()
		return
	}
	m.state.RemoteDescriptionSet = true
	m.flushPending()
}

func (m *Machine) onRemoteCandidate(msg protocol.Message) {
	if !m.state.Active() || msg.From == "" || msg.From != m.state.RemoteID {
		return
	}
	c, err := msg.ICECandidate()
	if err != nil {
		m.logger.Warn().Err(err).Msg("bad candidate")
		return
	}
	if !m.state.RemoteDescriptionSet {
		m.state.Pending = append(m.state.Pending, c)
		return
	}
	if err := m.transport.AddICECandidate(c); err != nil {
		m.logger.Warn().Err(err).Msg("add candidate failed")
	}
}

// flushPending applies queued candidates in arrival order.
func (m *Machine) flushPending() {
	pending := m.state.Pending
	m.state.Pending = nil
	for _, c := range pending {
		if err := m.transport.AddICECandidate(c); err != nil {
			m.logger.Warn().Err(err).Msg("add queued candidate failed")
		}
	}
}

func (m *Machine) onOfferReady(e offerReady) {
	if e.gen != m.state.Generation || m.state.Phase != PhaseBroadcaster || !m.describing() {
		return
	}
	if e.err != nil {
		m.fail(e.err)
		m.send(protocol.Message{Type: protocol.TypeStop, To: m.state.RemoteID})
		m.rearm()
		return
	}
	m.sendDescription(protocol.TypeOffer, e.desc)
}

func (m *Machine) onAnswerReady(e answerReady) {
	if e.gen != m.state.Generation || m.state.Phase != PhaseViewer || !m.describing() {
		return
	}
	if e.err != nil {
		m.fail(e.err)
		m.onStop()
		return
	}
	m.sendDescription(protocol.TypeAnswer, e.desc)
}

// describing reports whether our description is still owed to the remote.
// The transport may report connected before the completion is handled.
func (m *Machine) describing() bool {
	return !m.state.LocalDescriptionSent &&
		(m.state.Stage == StageNegotiating || m.state.Stage == StageConnected)
}

func (m *Machine) sendDescription(typ protocol.Type, desc *webrtc.SessionDescription) {
	sdp, err := protocol.DescriptionPayload(*desc)
	if err != nil {
		m.fail(err)
		return
	}
	m.send(protocol.Message{Type: typ, To: m.state.RemoteID, SDP: sdp})
	m.state.LocalDescriptionSent = true

	outbox := m.state.Outbox
	m.state.Outbox = nil
	for _, c := range outbox {
		m.sendCandidate(c)
	}
}

func (m *Machine) onLocalCandidate(e localCandidate) {
	if e.gen != m.state.Generation || !m.state.Active() {
		return
	}
	if !m.state.LocalDescriptionSent {
		m.state.Outbox = append(m.state.Outbox, e.c)
		return
	}
	m.sendCandidate(e.c)
}

func (m *Machine) sendCandidate(c webrtc.ICECandidateInit) {
	payload, err := protocol.CandidatePayload(c)
	if err != nil {
		m.logger.Warn().Err(err).Msg("encode candidate")
		return
	}
	m.send(protocol.Message{Type: protocol.TypeCandidate, To: m.state.RemoteID, Candidate: payload})
}

func (m *Machine) onTransportState(e transportState) {
	if e.gen != m.state.Generation || !m.state.Active() {
		return
	}
	switch {
	case e.st == core.TransportConnected:
		if m.state.Stage != StageNegotiating {
			return
		}
		m.state.Stage = StageConnected
		m.logger.Info().Str("remote", m.state.RemoteID).Msg("peer connected")
		m.startSampler(e.gen)
	case e.st.Terminal():
		m.logger.Info().Str("remote", m.state.RemoteID).Str("state", e.st.String()).Msg("transport ended")
		m.stopSampler()
		m.teardown()
	}
}

func (m *Machine) startSampler(gen uint64) {
	m.stopSampler()
	m.sampler = startSampler(m.opts.StatsInterval, m.transport, func(ctx context.Context, rtt time.Duration) {
		_ = m.Enqueue(ctx, latencySample{gen: gen, rtt: rtt})
	})
}
