package core

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
)

// MediaSource is an acquired local capture. Stop releases every track.
type MediaSource interface {
	Tracks() []webrtc.TrackLocal
	Stop()
}

// Capturer acquires local media; it may block until the device is ready.
type Capturer interface {
	Capture(ctx context.Context) (MediaSource, error)
}

type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	default:
		return "new"
	}
}

// Terminal reports whether the state ends the session.
func (s TransportState) Terminal() bool {
	return s == TransportDisconnected || s == TransportFailed || s == TransportClosed
}

// TransportHandlers receives transport callbacks. Any field may be nil.
type TransportHandlers struct {
	OnICECandidate func(webrtc.ICECandidateInit)
	OnStateChange  func(TransportState)
	OnTrack        func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
}

// PeerTransport is the direct connection to one remote peer.
// It is never reused once closed.
type PeerTransport interface {
	// AttachMedia adds every local track of src to the connection.
	AttachMedia(src MediaSource) error
	CreateAndSetOffer(ctx context.Context) (*webrtc.SessionDescription, error)
	ApplyRemote(desc webrtc.SessionDescription) error
	CreateAndSetAnswer(ctx context.Context) (*webrtc.SessionDescription, error)
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// RoundTripTime returns the latest RTT of the selected candidate pair.
	RoundTripTime() (time.Duration, bool)
	Close() error
}

type TransportFactory interface {
	NewTransport(h TransportHandlers) (PeerTransport, error)
}
