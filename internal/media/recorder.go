package media

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ReadFunc yields the next RTP packet of a remote track.
type ReadFunc func() (*rtp.Packet, error)

// Recorder pumps the packets of one remote track into its sinks.
type Recorder struct {
	mu    sync.RWMutex
	sinks map[string]*Sink

	packets atomic.Uint64
	bytes   atomic.Uint64
}

func NewRecorder() *Recorder {
	return &Recorder{sinks: make(map[string]*Sink)}
}

// OpenIVF creates an IVF file sink at path.
func OpenIVF(path string) (*ivfwriter.IVFWriter, error) {
	w, err := ivfwriter.New(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	return w, nil
}

func (r *Recorder) AddSink(name string, s *Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = s
}

// Stats returns the packet and payload byte counters.
func (r *Recorder) Stats() (packets, bytes uint64) {
	return r.packets.Load(), r.bytes.Load()
}

// Run reads until ctx is done or the track ends, then closes every sink.
func (r *Recorder) Run(ctx context.Context, read ReadFunc) {
	logger := log.With().Str("module", "media.recorder").Logger()
	defer r.closeAll(&logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("recorder ctx done")
			return
		default:
		}
		pkt, err := read()
		if err != nil {
			logger.Info().Err(err).Msg("track ended")
			return
		}
		r.packets.Add(1)
		r.bytes.Add(uint64(len(pkt.Payload)))
		r.forward(pkt, &logger)
	}
}

func (r *Recorder) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.sinks)
	r.mu.RUnlock()

	var dirty []string
	for name, s := range snapshot {
		switch s.State() {
		case SinkDelete:
			dirty = append(dirty, name)
		case SinkOk:
			if err := s.W.WriteRTP(pkt); err != nil {
				logger.Error().Err(err).Str("sink", name).Msg("write RTP error, dropping sink")
				s.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}
	if len(dirty) > 0 {
		r.cleanup(dirty, logger)
	}
}

func (r *Recorder) cleanup(dirty []string, logger *zerolog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range dirty {
		if s, ok := r.sinks[name]; ok {
			if err := s.close(); err != nil {
				logger.Warn().Err(err).Str("sink", name).Msg("close sink")
			}
			delete(r.sinks, name)
		}
	}
}

func (r *Recorder) closeAll(logger *zerolog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range r.sinks {
		s.MarkDelete()
		if err := s.close(); err != nil {
			logger.Warn().Err(err).Str("sink", name).Msg("close sink")
		}
		delete(r.sinks, name)
	}
	p, b := r.packets.Load(), r.bytes.Load()
	logger.Info().Uint64("packets", p).Uint64("bytes", b).Msg("recorder stopped")
}
