package rtc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/RoboCast/internal/core"
)

type sampleSource struct {
	track *webrtc.TrackLocalStaticSample
}

func (s sampleSource) Tracks() []webrtc.TrackLocal { return []webrtc.TrackLocal{s.track} }
func (s sampleSource) Stop()                       {}

// side collects the callbacks of one transport.
type side struct {
	cands  chan webrtc.ICECandidateInit
	states chan core.TransportState
	tracks chan string
}

func newSide() *side {
	return &side{
		cands:  make(chan webrtc.ICECandidateInit, 64),
		states: make(chan core.TransportState, 16),
		tracks: make(chan string, 4),
	}
}

func (s *side) handlers() core.TransportHandlers {
	return core.TransportHandlers{
		OnICECandidate: func(c webrtc.ICECandidateInit) { s.cands <- c },
		OnStateChange:  func(st core.TransportState) { s.states <- st },
		OnTrack: func(_ context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			s.tracks <- track.Kind().String()
		},
	}
}

func (s *side) waitState(t *testing.T, want core.TransportState) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case st := <-s.states:
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

// pipe applies candidates from one side to the other transport.
func pipe(ctx context.Context, from *side, to core.PeerTransport) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-from.cands:
				_ = to.AddICECandidate(c)
			}
		}
	}()
}

func TestTransports_NegotiateAndConnect(t *testing.T) {
	f := &Factory{Config: webrtc.Configuration{}, Label: "test"}
	bSide, vSide := newSide(), newSide()

	broadcaster, err := f.NewTransport(bSide.handlers())
	require.NoError(t, err)
	t.Cleanup(func() { _ = broadcaster.Close() })
	viewer, err := f.NewTransport(vSide.handlers())
	require.NoError(t, err)
	t.Cleanup(func() { _ = viewer.Close() })

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "robot")
	require.NoError(t, err)
	require.NoError(t, broadcaster.AttachMedia(sampleSource{track: track}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	offer, err := broadcaster.CreateAndSetOffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=video")

	require.NoError(t, viewer.ApplyRemote(*offer))
	answer, err := viewer.CreateAndSetAnswer(ctx)
	require.NoError(t, err)
	require.NoError(t, broadcaster.ApplyRemote(*answer))

	pipe(ctx, bSide, viewer)
	pipe(ctx, vSide, broadcaster)

	bSide.waitState(t, core.TransportConnected)
	vSide.waitState(t, core.TransportConnected)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = track.WriteSample(pionmedia.Sample{Data: []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}, Duration: 20 * time.Millisecond})
			}
		}
	}()

	select {
	case kind := <-vSide.tracks:
		assert.Equal(t, "video", kind)
	case <-time.After(10 * time.Second):
		t.Fatal("viewer never received the track")
	}
	cancel()
	wg.Wait()

	require.NoError(t, viewer.Close())
	require.NoError(t, viewer.Close())
	assert.ErrorIs(t, viewer.AddICECandidate(webrtc.ICECandidateInit{Candidate: "x"}), ErrTransportClosed)
	_, ok := viewer.RoundTripTime()
	assert.False(t, ok)
}

func TestSelectedPairRTT(t *testing.T) {
	_, ok := SelectedPairRTT(webrtc.StatsReport{})
	assert.False(t, ok)

	report := webrtc.StatsReport{
		"succeeded": webrtc.ICECandidatePairStats{
			State:                webrtc.StatsICECandidatePairStateSucceeded,
			CurrentRoundTripTime: 0.08,
		},
	}
	rtt, ok := SelectedPairRTT(report)
	require.True(t, ok)
	assert.Equal(t, 80*time.Millisecond, rtt)

	report["nominated"] = webrtc.ICECandidatePairStats{
		State:                webrtc.StatsICECandidatePairStateSucceeded,
		Nominated:            true,
		CurrentRoundTripTime: 0.025,
	}
	rtt, ok = SelectedPairRTT(report)
	require.True(t, ok)
	assert.Equal(t, 25*time.Millisecond, rtt)
}

func TestMapState(t *testing.T) {
	cases := map[webrtc.PeerConnectionState]core.TransportState{
		webrtc.PeerConnectionStateNew:          core.TransportNew,
		webrtc.PeerConnectionStateConnecting:   core.TransportConnecting,
		webrtc.PeerConnectionStateConnected:    core.TransportConnected,
		webrtc.PeerConnectionStateDisconnected: core.TransportDisconnected,
		webrtc.PeerConnectionStateFailed:       core.TransportFailed,
		webrtc.PeerConnectionStateClosed:       core.TransportClosed,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapState(in), in.String())
	}
}

func TestConfigFor(t *testing.T) {
	cfg := ConfigFor([]string{"stun:a:3478", "", "turn:b:3478"})
	require.Len(t, cfg.ICEServers, 2)
	assert.Equal(t, []string{"stun:a:3478"}, cfg.ICEServers[0].URLs)

	def := DefaultWebRTCConfig()
	require.Len(t, def.ICEServers, 1)
	assert.Equal(t, DefaultSTUN, def.ICEServers[0].URLs[0])
}
