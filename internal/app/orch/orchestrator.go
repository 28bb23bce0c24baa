package orch

import (
	"errors"

	"github.com/dkeye/RoboCast/internal/app"
	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/domain"
	"github.com/dkeye/RoboCast/internal/metrics"
	"github.com/dkeye/RoboCast/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Orchestrator implements the relay operations on top of the registry.
// Handlers are fire-and-forget: nothing is returned to the sender.
type Orchestrator struct {
	Registry *app.Registry
	Policy   app.Policy
	Metrics  *metrics.AppMetrics
}

func New(reg *app.Registry, policy app.Policy, m *metrics.AppMetrics) *Orchestrator {
	if m == nil {
		m = metrics.Noop()
	}
	return &Orchestrator{Registry: reg, Policy: policy, Metrics: m}
}

// OnConnect binds the session and tells the client its id.
func (o *Orchestrator) OnConnect(sid core.SessionID, conn core.SignalConnection, cancel func(), label string) {
	o.Registry.Bind(sid, conn, cancel, label)
	o.reply(sid, protocol.Message{Type: protocol.TypeWelcome, ID: string(sid)})
}

func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	removed := protocol.MustEncode(protocol.Message{Type: protocol.TypeRemoveBroadcaster, ID: string(sid)})
	departed := protocol.MustEncode(protocol.Message{Type: protocol.TypePeerDisconnected, ID: string(sid)})

	wasBroadcaster, res := o.Registry.Unbind(sid, removed, departed)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Bool("broadcaster", wasBroadcaster).Int("notified", res.SendTo).Msg("session disconnected")
	o.applyPolicy(res)
}

func (o *Orchestrator) reply(sid core.SessionID, msg protocol.Message) {
	b, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode reply")
		return
	}
	err = o.Registry.SendTo(sid, b)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnknownSession):
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("type", string(msg.Type)).Msg("reply: session gone")
	default:
		o.Metrics.Dropped(metrics.DropBackpressure)
		o.onSlow(sid)
	}
}

func (o *Orchestrator) applyPolicy(res app.PublishResult) {
	for _, sid := range res.Dropped {
		o.Metrics.Dropped(metrics.DropBackpressure)
		o.onSlow(sid)
	}
}

func (o *Orchestrator) onSlow(sid core.SessionID) {
	if o.Policy == nil {
		return
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	switch o.Policy.OnBackPressure(sess) {
	case app.KickSession:
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicking slow session")
		o.Registry.Cancel(sid)
	case app.DropFrame, app.NoAction:
	}
}
