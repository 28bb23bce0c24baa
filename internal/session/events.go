package session

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/protocol"
)

// Event is anything the machine reacts to.
type Event interface {
	event()
}

// StartBroadcast acquires media and declares the broadcaster role.
// Result, if set, receives exactly one value once the attempt settles.
type StartBroadcast struct {
	Result chan<- error
}

// StartViewing enters selection and asks the server for broadcasters.
type StartViewing struct{}

// Select picks a broadcaster while selecting.
type Select struct {
	ID string
}

// ViewAny asks every broadcaster at once and takes the first offer.
type ViewAny struct{}

type Stop struct{}

type RefreshBroadcasters struct{}

// Inbound is a frame received from the signaling server.
type Inbound struct {
	Msg protocol.Message
}

// SignalLost is posted when the signaling channel drops.
type SignalLost struct{}

type mediaAcquired struct {
	gen uint64
	src core.MediaSource
	err error
}

type offerReady struct {
	gen  uint64
	desc *webrtc.SessionDescription
	err  error
}

type answerReady struct {
	gen  uint64
	desc *webrtc.SessionDescription
	err  error
}

type localCandidate struct {
	gen uint64
	c   webrtc.ICECandidateInit
}

type transportState struct {
	gen uint64
	st  core.TransportState
}

type latencySample struct {
	gen uint64
	rtt time.Duration
}

func (StartBroadcast) event()      {}
func (StartViewing) event()        {}
func (Select) event()              {}
func (ViewAny) event()             {}
func (Stop) event()                {}
func (RefreshBroadcasters) event() {}
func (Inbound) event()             {}
func (SignalLost) event()          {}
func (mediaAcquired) event()       {}
func (offerReady) event()          {}
func (answerReady) event()         {}
func (localCandidate) event()      {}
func (transportState) event()      {}
func (latencySample) event()       {}
