package session

import (
	"slices"
	"time"

	"github.com/pion/webrtc/v4"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelecting
	PhaseBroadcaster
	PhaseViewer
)

func (p Phase) String() string {
	switch p {
	case PhaseSelecting:
		return "selecting"
	case PhaseBroadcaster:
		return "broadcaster"
	case PhaseViewer:
		return "viewer"
	default:
		return "idle"
	}
}

// Stage is the progress of the current attempt inside a role phase.
type Stage int

const (
	StageNone Stage = iota
	StageAcquiringMedia
	StageAwaitingPeer
	StageNegotiating
	StageConnected
)

func (s Stage) String() string {
	switch s {
	case StageAcquiringMedia:
		return "acquiring-media"
	case StageAwaitingPeer:
		return "awaiting-peer"
	case StageNegotiating:
		return "negotiating"
	case StageConnected:
		return "connected"
	default:
		return "none"
	}
}

// State is the whole client session. It only changes inside Dispatch.
type State struct {
	Phase      Phase
	Stage      Stage
	RemoteID   string
	Generation uint64

	// Pending holds remote candidates received before the remote description.
	Pending              []webrtc.ICECandidateInit
	RemoteDescriptionSet bool
	// Outbox holds local candidates gathered before our description went out.
	Outbox               []webrtc.ICECandidateInit
	LocalDescriptionSent bool
	// Solicited lists broadcasters that may be answering an untargeted
	// viewer request; they are told when we stop.
	Solicited            []string

	Broadcasters []string
	// ListVersion counts broadcaster snapshots received from the server.
	ListVersion uint64
	Online      bool
	RTT         time.Duration
	LocalID     string
	LastError   string
}

func (s State) clone() State {
	s.Pending = slices.Clone(s.Pending)
	s.Outbox = slices.Clone(s.Outbox)
	s.Solicited = slices.Clone(s.Solicited)
	s.Broadcasters = slices.Clone(s.Broadcasters)
	return s
}

// Active reports whether a role is held.
func (s State) Active() bool {
	return s.Phase == PhaseBroadcaster || s.Phase == PhaseViewer
}
