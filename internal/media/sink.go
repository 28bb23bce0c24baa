package media

import (
	"io"
	"sync/atomic"

	"github.com/pion/rtp"
)

type SinkState int32

const (
	SinkOk SinkState = iota
	SinkDelete
)

// PacketWriter accepts RTP packets: an IVF writer or a local RTP track.
type PacketWriter interface {
	WriteRTP(pkt *rtp.Packet) error
}

// Sink is one destination of a recorder.
type Sink struct {
	W     PacketWriter
	state atomic.Int32 // Zero by default (SinkOk)
}

func NewSink(w PacketWriter) *Sink {
	return &Sink{W: w}
}

func (s *Sink) State() SinkState {
	return SinkState(s.state.Load())
}

func (s *Sink) MarkDelete() { s.state.Store(int32(SinkDelete)) }

func (s *Sink) close() error {
	if c, ok := s.W.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
