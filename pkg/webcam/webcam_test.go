//go:build linux

package webcam

import (
	"errors"
	"testing"

	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/blackjack/webcam"
	"github.com/stretchr/testify/require"
)

func TestToSizes(t *testing.T) {
	sizes := toSizes([]webcam.FrameSize{
		{MinWidth: 640, MaxWidth: 640, MinHeight: 480, MaxHeight: 480},
		{MinWidth: 1280, MaxWidth: 1280, MinHeight: 720, MaxHeight: 720},
		{MinWidth: 160, MaxWidth: 1920, StepWidth: 8, MinHeight: 120, MaxHeight: 1080, StepHeight: 8},
		{},
	})
	require.Equal(t, []camera.Size{{Width: 640, Height: 480}, {Width: 1280, Height: 720}, {Width: 160, Height: 120}, {Width: 1920, Height: 1080}}, sizes)
}

func TestNextWithoutBuffers(t *testing.T) {
	d := &Device{size: camera.Size{Width: 2, Height: 1}}

	buf, f := d.next([]byte{1, 2, 3, 4})
	require.Nil(t, buf)
	require.Nil(t, f)

	var got *camera.Buffer
	d.SetFrameCallback(func(buf *camera.Buffer) { got = buf }, false)

	frame := []byte{1, 2, 3, 4}
	buf, f = d.next(frame)
	f(buf)
	frame[0] = 9 // driver memory reused
	require.Equal(t, []byte{1, 2, 3, 4}, got.Bytes())
}

func TestNextWithBuffers(t *testing.T) {
	d := &Device{size: camera.Size{Width: 2, Height: 1}}
	d.SetFrameCallback(func(*camera.Buffer) {}, true)

	buf, _ := d.next([]byte{1, 2, 3, 4})
	require.Nil(t, buf)

	loaned := camera.NewBuffer(make([]byte, 4), d.size)
	require.Nil(t, d.Loan(loaned))
	require.NotNil(t, d.Loan(camera.NewBuffer(make([]byte, 1), d.size)))

	buf, _ = d.next([]byte{5, 6, 7, 8})
	require.Same(t, loaned, buf)
	require.Equal(t, []byte{5, 6, 7, 8}, buf.Bytes())
	require.Empty(t, d.queue)
}

func TestCheckFrame(t *testing.T) {
	d := &Device{size: camera.Size{Width: 2, Height: 2}}

	require.Nil(t, d.check(make([]byte, 8)))
	// padded lines
	require.NotNil(t, d.check(make([]byte, 12)))
	require.NotNil(t, d.check(make([]byte, 4)))
}

func TestFail(t *testing.T) {
	d := &Device{}
	err := errors.New("read frame failed")

	for i := 1; i < camera.MaxCaptureErrors; i++ {
		require.False(t, d.fail(err))
	}
	require.True(t, d.fail(err))

	n, stopped := d.CaptureErrors()
	require.Equal(t, uint64(camera.MaxCaptureErrors), n)
	require.Equal(t, err, stopped)
}
