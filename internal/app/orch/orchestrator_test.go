package orch

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/RoboCast/internal/app"
	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/core/coretest"
	"github.com/dkeye/RoboCast/internal/core/mock_core"
	"github.com/dkeye/RoboCast/internal/domain"
	"github.com/dkeye/RoboCast/internal/protocol"
)

func newOrch(t *testing.T, peers ...core.SessionID) (*Orchestrator, map[core.SessionID]*coretest.Conn) {
	t.Helper()
	o := New(app.NewRegistry(nil), app.SimplePolicy{}, nil)
	conns := make(map[core.SessionID]*coretest.Conn, len(peers))
	for _, sid := range peers {
		c := &coretest.Conn{}
		conns[sid] = c
		o.OnConnect(sid, c, nil, "test")
	}
	return o, conns
}

func TestOnConnect_SendsWelcome(t *testing.T) {
	_, conns := newOrch(t, "a")
	w := conns["a"].OfType(protocol.TypeWelcome)
	require.Len(t, w, 1)
	assert.Equal(t, "a", w[0].ID)
}

// A registers, B lists, B requests A, offer/answer/candidates flow between them.
func TestScenario_RegisterListViewOfferAnswer(t *testing.T) {
	o, conns := newOrch(t, "A", "B")
	a, b := conns["A"], conns["B"]

	o.RegisterBroadcaster("A")
	ann := b.OfType(protocol.TypeBroadcaster)
	require.Len(t, ann, 1)
	assert.Equal(t, "A", ann[0].From)

	o.ListBroadcasters("B")
	lists := b.OfType(protocol.TypeBroadcastersList)
	require.Len(t, lists, 1)
	assert.Equal(t, []string{"A"}, lists[0].IDs)
	assert.Empty(t, a.OfType(protocol.TypeBroadcastersList), "list goes to caller only")

	o.RequestViewer("B", "A")
	views := a.OfType(protocol.TypeViewer)
	require.Len(t, views, 1)
	assert.Equal(t, "B", views[0].From)
	assert.Equal(t, "A", views[0].To, "targeted request keeps its target")

	sdpA := []byte(`{"type":"offer","sdp":"offer-from-a"}`)
	o.Relay("A", protocol.Message{Type: protocol.TypeOffer, To: "B", SDP: sdpA})
	offers := b.OfType(protocol.TypeOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, "A", offers[0].From)
	assert.Empty(t, offers[0].To)
	assert.JSONEq(t, string(sdpA), string(offers[0].SDP))

	sdpB := []byte(`{"type":"answer","sdp":"answer-from-b"}`)
	o.Relay("B", protocol.Message{Type: protocol.TypeAnswer, To: "A", SDP: sdpB})
	answers := a.OfType(protocol.TypeAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, "B", answers[0].From)
	assert.JSONEq(t, string(sdpB), string(answers[0].SDP))

	cand := []byte(`{"candidate":"garbage that is never parsed"}`)
	o.Relay("B", protocol.Message{Type: protocol.TypeCandidate, To: "A", Candidate: cand})
	cands := a.OfType(protocol.TypeCandidate)
	require.Len(t, cands, 1)
	assert.JSONEq(t, string(cand), string(cands[0].Candidate))
}

func TestRequestViewer_LegacyBroadcast(t *testing.T) {
	o, conns := newOrch(t, "A", "B", "C")
	o.RequestViewer("C", "")

	assert.Len(t, conns["A"].OfType(protocol.TypeViewer), 1)
	assert.Len(t, conns["B"].OfType(protocol.TypeViewer), 1)
	assert.Empty(t, conns["C"].OfType(protocol.TypeViewer))
}

func TestRelay_UnknownTargetSilentlyDropped(t *testing.T) {
	o, conns := newOrch(t, "A")
	o.Relay("A", protocol.Message{Type: protocol.TypeOffer, To: "gone", SDP: []byte(`{}`)})
	o.Relay("A", protocol.Message{Type: protocol.TypeStop, To: "gone"})

	for _, m := range conns["A"].Messages() {
		assert.Equal(t, protocol.TypeWelcome, m.Type, "no NACK expected")
	}
}

func TestRelay_OverlongTargetDropped(t *testing.T) {
	long := core.SessionID(strings.Repeat("x", domain.MaxPeerIDLen+1))
	o, conns := newOrch(t, "A", long)

	o.Relay("A", protocol.Message{Type: protocol.TypeOffer, To: string(long), SDP: []byte(`{}`)})
	o.RequestViewer("A", long)

	assert.Empty(t, conns[long].OfType(protocol.TypeOffer))
	assert.Empty(t, conns[long].OfType(protocol.TypeViewer))
}

func TestRelay_EmptyPayloadForwarded(t *testing.T) {
	o, conns := newOrch(t, "A", "B")
	o.Relay("A", protocol.Message{Type: protocol.TypeOffer, To: "B"})
	offers := conns["B"].OfType(protocol.TypeOffer)
	require.Len(t, offers, 1)
	assert.Empty(t, offers[0].SDP)
}

func TestRelay_IgnoresNonRelayedTypes(t *testing.T) {
	o, conns := newOrch(t, "A", "B")
	o.Relay("A", protocol.Message{Type: protocol.TypeBroadcaster, To: "B"})
	assert.Empty(t, conns["B"].OfType(protocol.TypeBroadcaster))
}

func TestRelay_StopForwarded(t *testing.T) {
	o, conns := newOrch(t, "A", "B")
	o.Relay("B", protocol.Message{Type: protocol.TypeStop, To: "A"})
	stops := conns["A"].OfType(protocol.TypeStop)
	require.Len(t, stops, 1)
	assert.Equal(t, "B", stops[0].From)
}

func TestOnDisconnect_BroadcasterRemovalFansOut(t *testing.T) {
	o, conns := newOrch(t, "A", "B", "C")
	o.RegisterBroadcaster("A")
	o.OnDisconnect("A")

	for _, sid := range []core.SessionID{"B", "C"} {
		rm := conns[sid].OfType(protocol.TypeRemoveBroadcaster)
		require.Len(t, rm, 1, sid)
		assert.Equal(t, "A", rm[0].ID)
		assert.Len(t, conns[sid].OfType(protocol.TypePeerDisconnected), 1, sid)
	}
	assert.Empty(t, o.Registry.Broadcasters())

	o.ListBroadcasters("B")
	lists := conns["B"].OfType(protocol.TypeBroadcastersList)
	require.Len(t, lists, 1)
	assert.Empty(t, lists[0].IDs)
}

func TestBackpressure_SlowSessionKicked(t *testing.T) {
	ctrl := gomock.NewController(t)
	slow := mock_core.NewMockSignalConnection(ctrl)
	slow.EXPECT().TrySend(gomock.Any()).Return(nil) // welcome
	slow.EXPECT().TrySend(gomock.Any()).Return(errors.New("backpressure"))

	o, _ := newOrch(t, "A")
	kicked := false
	o.OnConnect("slow", slow, func() { kicked = true }, "test")

	o.RegisterBroadcaster("A")
	assert.True(t, kicked)
}

func TestBackpressure_DropPolicyKeepsSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	slow := mock_core.NewMockSignalConnection(ctrl)
	slow.EXPECT().TrySend(gomock.Any()).Return(nil)
	slow.EXPECT().TrySend(gomock.Any()).Return(errors.New("backpressure"))

	o, _ := newOrch(t, "A")
	o.Policy = app.DropPolicy{}
	kicked := false
	o.OnConnect("slow", slow, func() { kicked = true }, "test")

	o.RegisterBroadcaster("A")
	assert.False(t, kicked)
}
