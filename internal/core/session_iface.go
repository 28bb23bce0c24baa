package core

import (
	"time"

	"github.com/dkeye/RoboCast/internal/domain"
)

type SessionID string

func (s SessionID) Peer() domain.PeerID { return domain.PeerID(s) }

// ClientSession is a read-only view of a connected client.
type ClientSession struct {
	ID           SessionID
	Role         domain.Role
	ConnectedAt  time.Time
	RegisteredAt time.Time
	Label        string
}
