package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/RoboCast/internal/core"
)

var ErrNoMediaPath = errors.New("no media path configured")

const defaultFrameDuration = 33 * time.Millisecond

// FileSource loops an IVF file into a single video track.
type FileSource struct {
	path     string
	track    *webrtc.TrackLocalStaticSample
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// OpenFile validates the file and starts pacing frames into the track.
// The returned source keeps running until Stop.
func OpenFile(path, streamID string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open media: %w", err)
	}
	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read ivf header: %w", err)
	}

	mime, err := mimeFor(header.FourCC)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", streamID)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("new track: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &FileSource{
		path:     path,
		track:    track,
		interval: frameDuration(header),
		cancel:   cancel,
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cancel()
		_ = f.Close()
		return nil, fmt.Errorf("rewind media: %w", err)
	}
	s.wg.Add(1)
	go s.loop(ctx, f)
	return s, nil
}

func mimeFor(fourcc string) (string, error) {
	switch fourcc {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	default:
		return "", fmt.Errorf("unsupported ivf codec %q", fourcc)
	}
}

func frameDuration(h *ivfreader.IVFFileHeader) time.Duration {
	if h.TimebaseDenominator == 0 || h.TimebaseNumerator == 0 {
		return defaultFrameDuration
	}
	return time.Duration(float64(time.Second) * float64(h.TimebaseNumerator) / float64(h.TimebaseDenominator))
}

func (s *FileSource) loop(ctx context.Context, f *os.File) {
	defer s.wg.Done()
	defer f.Close()
	logger := log.With().Str("module", "media").Str("file", s.path).Logger()

	reader, _, err := ivfreader.NewWith(f)
	if err != nil {
		logger.Error().Err(err).Msg("ivf reader")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				logger.Error().Err(err).Msg("rewind")
				return
			}
			if reader, _, err = ivfreader.NewWith(f); err != nil {
				logger.Error().Err(err).Msg("ivf reader")
				return
			}
			continue
		}
		if err != nil {
			logger.Error().Err(err).Msg("parse frame, stopping")
			return
		}
		if err := s.track.WriteSample(pionmedia.Sample{Data: frame, Duration: s.interval}); err != nil {
			logger.Debug().Err(err).Msg("write sample")
		}
	}
}

func (s *FileSource) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.track}
}

func (s *FileSource) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		log.Info().Str("module", "media").Str("file", s.path).Msg("media stopped")
	})
}

// FileCapturer is the capture device of a headless robot: a looping file.
type FileCapturer struct {
	Path     string
	StreamID string
}

func (c FileCapturer) Capture(ctx context.Context) (core.MediaSource, error) {
	if c.Path == "" {
		return nil, ErrNoMediaPath
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream := c.StreamID
	if stream == "" {
		stream = "robocast"
	}
	return OpenFile(c.Path, stream)
}
