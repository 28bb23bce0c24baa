package orch

import (
	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) RegisterBroadcaster(sid core.SessionID) {
	announce := protocol.MustEncode(protocol.Message{Type: protocol.TypeBroadcaster, From: string(sid)})
	res, ok := o.Registry.RegisterBroadcaster(sid, announce)
	if !ok {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("register: no session")
		return
	}
	o.applyPolicy(res)
}

// ListBroadcasters answers the caller only.
func (o *Orchestrator) ListBroadcasters(sid core.SessionID) {
	snap := o.Registry.Broadcasters()
	ids := make([]string, 0, len(snap))
	for _, p := range snap {
		ids = append(ids, string(p.ID))
	}
	o.reply(sid, protocol.Message{Type: protocol.TypeBroadcastersList, IDs: ids})
}

// RequestViewer notifies target that sid wants to watch it. Without a target
// every other session is told, which is the legacy discovery mode. A targeted
// request keeps its "to" so the broadcaster can tell it from a legacy one.
func (o *Orchestrator) RequestViewer(sid core.SessionID, target core.SessionID) {
	msg := protocol.Message{Type: protocol.TypeViewer, From: string(sid)}
	if target == "" {
		res := o.Registry.BroadcastFrom(sid, protocol.MustEncode(msg))
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Int("sent_to", res.SendTo).Msg("viewer broadcast")
		o.applyPolicy(res)
		return
	}
	if !o.validTarget(sid, target, msg.Type) {
		return
	}
	msg.To = string(target)
	o.forward(sid, target, msg)
}
