package media

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeIVF produces a minimal IVF container with n tiny frames.
func writeIVF(t *testing.T, fourcc string, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.ivf")

	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:12], fourcc)
	binary.LittleEndian.PutUint16(header[12:], 64)
	binary.LittleEndian.PutUint16(header[14:], 48)
	binary.LittleEndian.PutUint32(header[16:], 1000) // timebase denominator
	binary.LittleEndian.PutUint32(header[20:], 10)   // timebase numerator
	binary.LittleEndian.PutUint32(header[24:], uint32(n))

	buf := append([]byte{}, header...)
	for i := 0; i < n; i++ {
		frame := []byte{0x10, 0x02, 0x00, byte(i)}
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(frame)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		buf = append(buf, fh...)
		buf = append(buf, frame...)
	}
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func TestFileSource_OpenAndStop(t *testing.T) {
	path := writeIVF(t, "VP80", 3)

	src, err := OpenFile(path, "robot-1")
	require.NoError(t, err)

	tracks := src.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, webrtc.RTPCodecTypeVideo, tracks[0].Kind())
	assert.Equal(t, "robot-1", tracks[0].StreamID())
	assert.Equal(t, "video", tracks[0].ID())

	src.Stop()
	src.Stop()
}

func TestFileSource_Rejects(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.ivf"), "s")
	require.Error(t, err)

	_, err = OpenFile(writeIVF(t, "H264", 1), "s")
	require.ErrorContains(t, err, "unsupported ivf codec")

	bad := filepath.Join(t.TempDir(), "bad.ivf")
	require.NoError(t, os.WriteFile(bad, []byte("not an ivf"), 0o600))
	_, err = OpenFile(bad, "s")
	require.Error(t, err)
}

func TestFileCapturer(t *testing.T) {
	_, err := FileCapturer{}.Capture(context.Background())
	require.ErrorIs(t, err, ErrNoMediaPath)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FileCapturer{Path: writeIVF(t, "VP80", 1)}.Capture(ctx)
	require.ErrorIs(t, err, context.Canceled)

	src, err := FileCapturer{Path: writeIVF(t, "VP80", 1)}.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "robocast", src.Tracks()[0].StreamID())
	src.Stop()
}

type memSink struct {
	mu     sync.Mutex
	got    []uint16
	fail   bool
	closed bool
}

func (m *memSink) WriteRTP(p *rtp.Packet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.got = append(m.got, p.SequenceNumber)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func packets(n int) ReadFunc {
	i := 0
	return func() (*rtp.Packet, error) {
		if i >= n {
			return nil, io.EOF
		}
		i++
		return &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(i)}, Payload: []byte{1, 2, 3}}, nil
	}
}

func TestRecorder_FansOutAndCounts(t *testing.T) {
	rec := NewRecorder()
	good := &memSink{}
	broken := &memSink{fail: true}
	gone := &memSink{}

	rec.AddSink("good", NewSink(good))
	rec.AddSink("broken", NewSink(broken))
	gs := NewSink(gone)
	gs.MarkDelete()
	rec.AddSink("gone", gs)

	rec.Run(context.Background(), packets(5))

	assert.Equal(t, []uint16{1, 2, 3, 4, 5}, good.got)
	assert.Empty(t, gone.got)
	assert.True(t, broken.closed)
	assert.True(t, good.closed)
	assert.True(t, gone.closed)

	p, b := rec.Stats()
	assert.EqualValues(t, 5, p)
	assert.EqualValues(t, 15, b)

	assert.Empty(t, rec.sinks, "sinks are released when the track ends")
}

func TestRecorder_StopsOnContext(t *testing.T) {
	rec := NewRecorder()
	sink := &memSink{}
	rec.AddSink("s", NewSink(sink))

	ctx, cancel := context.WithCancel(context.Background())
	reads := 0
	rec.Run(ctx, func() (*rtp.Packet, error) {
		reads++
		if reads == 2 {
			cancel()
		}
		return &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(reads)}}, nil
	})

	assert.Equal(t, []uint16{1, 2}, sink.got)
	assert.True(t, sink.closed)
}

func TestOpenIVF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ivf")
	w, err := OpenIVF(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "DKIF", string(data[:4]))
}
