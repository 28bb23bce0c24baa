package orch

import (
	"errors"

	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/domain"
	"github.com/dkeye/RoboCast/internal/metrics"
	"github.com/dkeye/RoboCast/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay forwards offer/answer/candidate/stop to msg.To. The payload is copied
// as is; only the origin is rewritten.
func (o *Orchestrator) Relay(sid core.SessionID, msg protocol.Message) {
	if !msg.Type.Relayed() {
		log.Warn().Str("module", "orch").Str("type", string(msg.Type)).Msg("relay: not a relayed type")
		return
	}
	target := core.SessionID(msg.To)
	if !o.validTarget(sid, target, msg.Type) {
		return
	}
	out := protocol.Message{
		Type:      msg.Type,
		From:      string(sid),
		SDP:       msg.SDP,
		Candidate: msg.Candidate,
	}
	o.forward(sid, target, out)
}

func (o *Orchestrator) validTarget(sid, target core.SessionID, typ protocol.Type) bool {
	if err := domain.PeerID(target).Validate(); err != nil {
		o.Metrics.Dropped(metrics.DropMalformed)
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("type", string(typ)).Msg("relay: bad target")
		return false
	}
	return true
}

func (o *Orchestrator) forward(sid, target core.SessionID, msg protocol.Message) {
	b, err := protocol.Encode(msg)
	if err != nil {
		o.Metrics.Dropped(metrics.DropMalformed)
		log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("relay encode")
		return
	}
	err = o.Registry.SendTo(target, b)
	switch {
	case err == nil:
		o.Metrics.Relayed(string(msg.Type))
	case errors.Is(err, domain.ErrUnknownSession):
		o.Metrics.Dropped(metrics.DropUnknownTarget)
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("to", string(target)).Str("type", string(msg.Type)).Msg("relay: target gone, dropped")
	default:
		o.Metrics.Dropped(metrics.DropBackpressure)
		o.onSlow(target)
	}
}
