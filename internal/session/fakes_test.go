package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/RoboCast/internal/core"
	"github.com/dkeye/RoboCast/internal/protocol"
)

type fakeSignaler struct {
	mu   sync.Mutex
	sent []protocol.Message
}

func (s *fakeSignaler) Send(msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSignaler) types() []protocol.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Type, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.Type)
	}
	return out
}

func (s *fakeSignaler) last() protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return protocol.Message{}
	}
	return s.sent[len(s.sent)-1]
}

func (s *fakeSignaler) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

type fakeMedia struct {
	mu    sync.Mutex
	stops int
}

func (f *fakeMedia) Tracks() []webrtc.TrackLocal { return nil }

func (f *fakeMedia) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeMedia) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeCapturer struct {
	media *fakeMedia
	err   error
}

func (c *fakeCapturer) Capture(ctx context.Context) (core.MediaSource, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.media, nil
}

// fakeTransport records every operation in order.
type fakeTransport struct {
	mu        sync.Mutex
	h         core.TransportHandlers
	ops       []string
	attached  int
	closes    int
	rtt       time.Duration
	remoteErr error
	offerErr  error
}

func (t *fakeTransport) record(op string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, op)
}

func (t *fakeTransport) AttachMedia(core.MediaSource) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attached++
	return nil
}

func (t *fakeTransport) CreateAndSetOffer(context.Context) (*webrtc.SessionDescription, error) {
	t.record("offer")
	if t.offerErr != nil {
		return nil, t.offerErr
	}
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (t *fakeTransport) ApplyRemote(desc webrtc.SessionDescription) error {
	t.record("remote:" + desc.Type.String())
	return t.remoteErr
}

func (t *fakeTransport) CreateAndSetAnswer(context.Context) (*webrtc.SessionDescription, error) {
	t.record("answer")
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (t *fakeTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	t.record("cand:" + c.Candidate)
	return nil
}

func (t *fakeTransport) RoundTripTime() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rtt, t.rtt > 0
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

func (t *fakeTransport) opLog() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.ops...)
}

func (t *fakeTransport) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	rtt        time.Duration
	err        error
}

func (f *fakeFactory) NewTransport(h core.TransportHandlers) (core.PeerTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{h: h, rtt: f.rtt}
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func (f *fakeFactory) latest() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

// harness runs the machine deterministically: spawned work is queued and
// executed by settle together with the posted events.
type harness struct {
	m       *Machine
	sig     *fakeSignaler
	factory *fakeFactory
	cap     *fakeCapturer
	media   *fakeMedia
	jobs    []func()
}

func newHarness(opts Options) *harness {
	h := &harness{
		sig:     &fakeSignaler{},
		factory: &fakeFactory{},
		media:   &fakeMedia{},
	}
	h.cap = &fakeCapturer{media: h.media}
	h.m = NewMachine(h.sig, h.factory, h.cap, opts)
	h.m.spawn = func(f func()) { h.jobs = append(h.jobs, f) }
	return h
}

func (h *harness) settle() {
	for {
		if len(h.jobs) > 0 {
			job := h.jobs[0]
			h.jobs = h.jobs[1:]
			job()
			continue
		}
		select {
		case ev := <-h.m.events:
			h.m.Dispatch(ev)
		default:
			return
		}
	}
}

func (h *harness) inbound(msg protocol.Message) {
	h.m.Dispatch(Inbound{Msg: msg})
}

func sdpMsg(typ protocol.Type, from string) protocol.Message {
	kind := webrtc.SDPTypeOffer
	if typ == protocol.TypeAnswer {
		kind = webrtc.SDPTypeAnswer
	}
	raw, _ := json.Marshal(webrtc.SessionDescription{Type: kind, SDP: fmt.Sprintf("v=0 %s", from)})
	return protocol.Message{Type: typ, From: from, SDP: raw}
}

func candMsg(from, cand string) protocol.Message {
	raw, _ := json.Marshal(webrtc.ICECandidateInit{Candidate: cand})
	return protocol.Message{Type: protocol.TypeCandidate, From: from, Candidate: raw}
}

var errNoCamera = errors.New("no camera")
