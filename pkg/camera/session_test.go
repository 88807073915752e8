package camera_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/fake"
	"github.com/AlexxIT/go2cam/pkg/y4m"
	"github.com/stretchr/testify/require"
)

var hd = camera.Size{Width: 1280, Height: 720}

func newSession(t *testing.T, reuse bool) (*camera.Session, *fake.Driver) {
	drv := fake.NewDriver()
	info, ok := camera.FindDevice(drv.Infos, camera.FacingBack)
	require.True(t, ok)

	s := camera.NewSession(drv, info, camera.Options{Reuse: reuse})
	t.Cleanup(func() { _ = s.Release() })
	return s, drv
}

func TestSessionLifecycle(t *testing.T) {
	s, drv := newSession(t, true)
	require.Equal(t, camera.StateClosed, s.State())
	require.Nil(t, s.AvailableResolutions())

	require.Nil(t, s.Open())
	require.Equal(t, camera.StateOpen, s.State())
	require.Equal(t, fake.DefaultSizes, s.AvailableResolutions())

	// double open is no-op
	require.Nil(t, s.Open())

	size, err := s.StartPreview(hd, camera.Env{})
	require.Nil(t, err)
	require.Equal(t, hd, size)
	require.Equal(t, camera.StatePreview, s.State())

	dev := drv.Device("0")
	require.Equal(t, 4, dev.Queued())

	st := s.Stats()
	require.Equal(t, 4, st.Pool.Loaned)
	require.Equal(t, 0, st.Pool.Free)

	require.Nil(t, s.StopPreview())
	require.Equal(t, camera.StateOpen, s.State())
	require.Equal(t, 0, s.Stats().Pool.Loaned)

	require.Nil(t, s.Release())
	require.Equal(t, camera.StateClosed, s.State())
	require.Nil(t, s.AvailableResolutions())
	require.Nil(t, drv.Device("0"))

	// release is idempotent
	require.Nil(t, s.Release())
}

func TestSessionOpenFailure(t *testing.T) {
	s, drv := newSession(t, true)
	drv.OpenErr = errors.New("busy")

	err := s.Open()
	require.ErrorIs(t, err, camera.ErrDeviceUnavailable)
	require.Equal(t, camera.StateClosed, s.State())

	drv.OpenErr = nil
	require.Nil(t, s.Open())

	// second session on same device
	other := camera.NewSession(drv, s.Info(), camera.Options{})
	require.ErrorIs(t, other.Open(), camera.ErrDeviceUnavailable)
}

func TestSessionNoCandidates(t *testing.T) {
	s, drv := newSession(t, true)
	drv.Sizes = nil

	require.Nil(t, s.Open())

	_, err := s.SelectResolution(camera.Size{}, hd, camera.Env{})
	require.ErrorIs(t, err, camera.ErrNoCandidates)

	_, err = s.StartPreview(hd, camera.Env{})
	require.ErrorIs(t, err, camera.ErrNoCandidates)

	// inert closed session
	require.Equal(t, camera.StateClosed, s.State())
	require.False(t, s.Stats().Pool.Attached)
	require.Nil(t, drv.Device("0"))
}

func TestSessionInvalidState(t *testing.T) {
	s, _ := newSession(t, true)

	require.ErrorIs(t, s.SetRecording(true), camera.ErrInvalidState)
	require.ErrorIs(t, s.StopPreview(), camera.ErrInvalidState)
	_, err := s.StartPreview(hd, camera.Env{})
	require.ErrorIs(t, err, camera.ErrInvalidState)
	_, err = s.SelectResolution(camera.Size{}, hd, camera.Env{})
	require.ErrorIs(t, err, camera.ErrInvalidState)

	require.Nil(t, s.Open())
	require.ErrorIs(t, s.SetRecording(true), camera.ErrInvalidState)
}

func TestSessionRecording(t *testing.T) {
	s, drv := newSession(t, true)
	require.Nil(t, s.Open())
	_, err := s.StartPreview(hd, camera.Env{})
	require.Nil(t, err)

	var mu sync.Mutex
	var got []*camera.Buffer
	s.OnFrame(func(buf *camera.Buffer) {
		mu.Lock()
		got = append(got, buf)
		mu.Unlock()
	})

	require.Nil(t, s.SetRecording(true))

	dev := drv.Device("0")
	for i := 0; i < 4; i++ {
		require.True(t, dev.Frame())
	}
	require.False(t, dev.Frame()) // all buffers with consumer

	st := s.Stats()
	require.Equal(t, 0, st.Pool.Loaned)
	require.Equal(t, 4, st.Pool.Pending)

	for _, buf := range got {
		require.Equal(t, camera.BufferPending, buf.State())
		require.Equal(t, hd.Area()*2, len(buf.Bytes()))
		require.True(t, s.ReleaseBuffer(buf))
		require.Equal(t, camera.BufferLoaned, buf.State())
	}
	require.Equal(t, 4, dev.Queued())

	// not recording - filled and released buffer is discarded
	require.Nil(t, s.SetRecording(false))
	got = nil
	require.True(t, dev.Frame())
	require.Len(t, got, 1)
	require.True(t, got[0].Release())
	require.Equal(t, camera.BufferDiscarded, got[0].State())
	require.Equal(t, 3, dev.Queued())

	// recording again refills device queue
	require.Nil(t, s.SetRecording(true))
	require.Equal(t, 4, dev.Queued())
}

func TestSessionWithoutReuse(t *testing.T) {
	s, drv := newSession(t, false)
	require.Nil(t, s.Open())
	_, err := s.StartPreview(hd, camera.Env{})
	require.Nil(t, err)

	dev := drv.Device("0")
	require.Equal(t, 0, dev.Queued())

	var frames int
	s.OnFrame(func(buf *camera.Buffer) {
		frames++
		require.False(t, buf.Release())
	})

	require.True(t, dev.Frame())
	require.True(t, dev.Frame())
	require.Equal(t, 2, frames)
	require.Equal(t, uint64(0), s.Stats().Pool.Allocated)
}

func TestSessionStaleAfterRelease(t *testing.T) {
	s, drv := newSession(t, true)
	require.Nil(t, s.Open())
	_, err := s.StartPreview(hd, camera.Env{})
	require.Nil(t, err)
	require.Nil(t, s.SetRecording(true))

	var held *camera.Buffer
	s.OnFrame(func(buf *camera.Buffer) { held = buf })

	dev := drv.Device("0")
	require.True(t, dev.Frame())
	require.NotNil(t, held)

	require.Nil(t, s.Release())

	// consumer finishes after teardown
	require.False(t, held.Release())
	require.Equal(t, camera.BufferDiscarded, held.State())
}

func TestSessionSetResolution(t *testing.T) {
	s, drv := newSession(t, true)
	require.Nil(t, s.Open())

	require.NotNil(t, s.SetResolution(camera.Size{Width: 1, Height: 1}))

	_, err := s.StartPreview(hd, camera.Env{})
	require.Nil(t, err)
	require.Nil(t, s.SetRecording(true))

	var held *camera.Buffer
	s.OnFrame(func(buf *camera.Buffer) { held = buf })
	require.True(t, drv.Device("0").Frame())

	full := camera.Size{Width: 1920, Height: 1080}
	require.Nil(t, s.SetResolution(full))
	require.Equal(t, full, s.Resolution())
	require.True(t, s.Recording())

	// buffer of old resolution never comes back
	require.False(t, held.Release())

	st := s.Stats()
	require.Equal(t, full, st.Pool.Size)
	require.Equal(t, 4, st.Pool.Loaned)
	require.Equal(t, 4, drv.Device("0").Queued())
}

func TestSessionPreviousSelection(t *testing.T) {
	s, drv := newSession(t, true)
	drv.Sizes = []camera.Size{{Width: 1280, Height: 720}, {Width: 720, Height: 1280}}
	require.Nil(t, s.Open())

	square := camera.Size{Width: 1000, Height: 1000}

	size, err := s.StartPreview(square, camera.Env{})
	require.Nil(t, err)
	require.Equal(t, camera.Size{Width: 1280, Height: 720}, size)
	require.Nil(t, s.StopPreview())

	require.Nil(t, s.SetResolution(camera.Size{Width: 720, Height: 1280}))

	size, err = s.StartPreview(square, camera.Env{})
	require.Nil(t, err)
	require.Equal(t, camera.Size{Width: 720, Height: 1280}, size)
}

func TestSessionRecord(t *testing.T) {
	s, drv := newSession(t, true)
	require.Nil(t, s.Open())
	_, err := s.StartPreview(hd, camera.Env{})
	require.Nil(t, err)

	sink := &countSink{}
	require.Nil(t, s.Record(sink))
	require.True(t, s.Recording())

	dev := drv.Device("0")
	for i := 0; i < 10; i++ {
		require.True(t, dev.Frame())
	}
	require.Equal(t, 10, sink.frames)

	st := s.Stats()
	require.Equal(t, uint64(10), st.Pool.Recycled)
	require.Equal(t, uint64(4), st.Pool.Allocated)

	require.Nil(t, s.Record(nil))
	require.False(t, s.Recording())
}

func TestSessionStartRecording(t *testing.T) {
	s, drv := newSession(t, true)
	drv.Sizes = []camera.Size{{Width: 4, Height: 2}}
	require.Nil(t, s.Open())

	var out bytes.Buffer
	_, err := s.StartRecording(&out)
	require.ErrorIs(t, err, camera.ErrInvalidState)

	_, err = s.StartPreview(camera.Size{Width: 4, Height: 2}, camera.Env{})
	require.Nil(t, err)

	rec, err := s.StartRecording(&out)
	require.Nil(t, err)
	require.True(t, s.Recording())

	dev := drv.Device("0")
	require.True(t, dev.Frame())
	require.True(t, dev.Frame())

	s.StopRecording()
	require.False(t, s.Recording())
	require.Nil(t, rec.Flush())
	require.Equal(t, 2, rec.Frames)

	hdr, frames, err := y4m.ReadPacked(&out, 0)
	require.Nil(t, err)
	require.Equal(t, 4, hdr.Width)
	require.Len(t, frames, 2)
}

func TestSessionResolutionChangeStopsRecording(t *testing.T) {
	s, drv := newSession(t, true)
	require.Nil(t, s.Open())

	vga := camera.Size{Width: 640, Height: 480}
	_, err := s.StartPreview(vga, camera.Env{})
	require.Nil(t, err)

	var out bytes.Buffer
	rec, err := s.StartRecording(&out)
	require.Nil(t, err)
	require.True(t, drv.Device("0").Frame())

	full := camera.Size{Width: 1920, Height: 1080}
	require.Nil(t, s.SetResolution(full))
	require.Equal(t, full, s.Resolution())
	require.False(t, s.Recording())

	// frame of new size never reaches old stream
	require.True(t, drv.Device("0").Frame())
	require.Nil(t, rec.Flush())
	require.Equal(t, 1, rec.Frames)

	hdr, frames, err := y4m.ReadPacked(&out, 0)
	require.Nil(t, err)
	require.Equal(t, 640, hdr.Width)
	require.Equal(t, 480, hdr.Height)
	require.Len(t, frames, 1)

	// same size keeps recording
	_, err = s.StartRecording(&out)
	require.Nil(t, err)
	require.Nil(t, s.SetResolution(full))
	require.True(t, s.Recording())
}

func TestSessionCaptureStalled(t *testing.T) {
	s, drv := newSession(t, true)
	require.Nil(t, s.Open())
	_, err := s.StartPreview(hd, camera.Env{})
	require.Nil(t, err)

	dev := drv.Device("0")
	eio := errors.New("input/output error")

	require.False(t, dev.Fail(eio))
	st := s.Stats()
	require.Equal(t, uint64(1), st.CaptureErrors)
	require.Empty(t, st.Stalled)

	for i := 1; i < camera.MaxCaptureErrors; i++ {
		dev.Fail(eio)
	}

	st = s.Stats()
	require.Equal(t, uint64(camera.MaxCaptureErrors), st.CaptureErrors)
	require.Equal(t, eio.Error(), st.Stalled)
	require.Equal(t, camera.StatePreview, st.State)
	require.False(t, dev.Frame())

	// restart clears stalled state
	require.Nil(t, s.StopPreview())
	_, err = s.StartPreview(hd, camera.Env{})
	require.Nil(t, err)
	st = s.Stats()
	require.Zero(t, st.CaptureErrors)
	require.Empty(t, st.Stalled)
	require.True(t, dev.Frame())
}

func TestSessionAsyncDevice(t *testing.T) {
	s, drv := newSession(t, true)
	drv.Interval = time.Millisecond
	require.Nil(t, s.Open())
	_, err := s.StartPreview(hd, camera.Env{})
	require.Nil(t, err)

	sink := &countSink{}
	require.Nil(t, s.Record(sink))

	require.Eventually(t, func() bool {
		return s.Stats().Frames >= 10
	}, time.Second, time.Millisecond)

	require.Nil(t, s.Release())

	st := s.Stats()
	require.Equal(t, 0, st.Pool.Loaned+st.Pool.Pending)
	require.LessOrEqual(t, st.Pool.Allocated, uint64(4))
}

type countSink struct {
	mu     sync.Mutex
	frames int
}

func (c *countSink) WriteFrame(b []byte) error {
	c.mu.Lock()
	c.frames++
	c.mu.Unlock()
	return nil
}
