package signal

import (
	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleViewer(
	sid core.SessionID,
	msg protocol.Message,
) {
	target := core.SessionID(msg.To)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("to", string(target)).Msg("viewer request")
	ctl.Orch.RequestViewer(sid, target)
}

func (ctl *SignalWSController) handleRelay(
	sid core.SessionID,
	msg protocol.Message,
) {
	log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("to", msg.To).Str("type", string(msg.Type)).Msg("relay")
	ctl.Orch.Relay(sid, msg)
}
