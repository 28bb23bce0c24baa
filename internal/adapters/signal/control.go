package signal

import "github.com/dkeye/RoboCast/internal/protocol"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, protocol.Message{Type: protocol.TypePong})
}
