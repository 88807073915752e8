//go:build linux

// Package webcam - capture devices on top of github.com/blackjack/webcam,
// frames copied from driver memory into loaned or new buffers
package webcam

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/v4l2/device"
	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const yuyv = webcam.PixelFormat(device.V4L2_PIX_FMT_YUYV)

type Driver struct {
	// Buffers - driver mmap buffers
	Buffers int
	// Timeout - single frame wait, rounded to seconds
	Timeout time.Duration
	Log     zerolog.Logger
}

func (d *Driver) Devices() ([]camera.DeviceInfo, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var infos []camera.DeviceInfo

	for _, path := range paths {
		cam, err := webcam.Open(path)
		if err != nil {
			continue
		}

		if _, ok := cam.GetSupportedFormats()[yuyv]; ok {
			infos = append(infos, camera.DeviceInfo{
				ID: path, Name: filepath.Base(path), Facing: camera.FacingExternal,
			})
		}

		_ = cam.Close()
	}

	return infos, nil
}

func (d *Driver) Open(id string) (camera.Device, error) {
	cam, err := webcam.Open(id)
	if err != nil {
		return nil, errors.Wrap(err, "webcam: can not open device")
	}

	if _, ok := cam.GetSupportedFormats()[yuyv]; !ok {
		_ = cam.Close()
		return nil, errors.Errorf("webcam: YUYV not supported: %s", id)
	}

	if d.Buffers > 0 {
		if err = cam.SetBufferCount(uint32(d.Buffers)); err != nil {
			_ = cam.Close()
			return nil, errors.Wrap(err, "webcam: can not set buffer count")
		}
	}

	seconds := uint32(d.Timeout / time.Second)
	if seconds == 0 {
		seconds = 1
	}

	return &Device{cam: cam, timeout: seconds, log: d.Log}, nil
}

type Device struct {
	cam     *webcam.Webcam
	timeout uint32
	log     zerolog.Logger

	mu          sync.Mutex
	size        camera.Size
	onFrame     camera.FrameFunc
	withBuffers bool
	queue       []*camera.Buffer
	streaming   bool

	health camera.CaptureHealth

	done chan struct{}
	wg   sync.WaitGroup
}

func (d *Device) Sizes() ([]camera.Size, error) {
	return toSizes(d.cam.GetSupportedFrameSizes(yuyv)), nil
}

func (d *Device) SetSize(size camera.Size) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streaming {
		return errors.New("webcam: set size while streaming")
	}

	format, w, h, err := d.cam.SetImageFormat(yuyv, uint32(size.Width), uint32(size.Height))
	if err != nil {
		return errors.Wrap(err, "webcam: can not set image format")
	}
	if format != yuyv || int(w) != size.Width || int(h) != size.Height {
		return errors.Errorf("webcam: driver changed format to %s %dx%d", device.FourCC(uint32(format)), w, h)
	}

	d.size = size
	d.queue = nil
	return nil
}

func (d *Device) BytesPerPixel() int {
	return 2
}

func (d *Device) SetFrameCallback(f camera.FrameFunc, withBuffers bool) {
	d.mu.Lock()
	d.onFrame = f
	if f != nil {
		d.withBuffers = withBuffers
	}
	d.mu.Unlock()
}

func (d *Device) Loan(buf *camera.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(buf.Data) < d.size.Area()*2 {
		return errors.New("webcam: buffer too small")
	}

	d.queue = append(d.queue, buf)
	return nil
}

func (d *Device) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streaming {
		return nil
	}

	if err := d.cam.StartStreaming(); err != nil {
		return errors.Wrap(err, "webcam: can not start streaming")
	}

	d.streaming = true
	d.health.Reset()
	d.done = make(chan struct{})
	d.wg.Add(1)
	go d.capture(d.done)
	return nil
}

func (d *Device) StopPreview() error {
	d.mu.Lock()
	if !d.streaming {
		d.mu.Unlock()
		return nil
	}
	close(d.done)
	d.done = nil
	d.mu.Unlock()

	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.streaming = false
	d.queue = nil
	return errors.Wrap(d.cam.StopStreaming(), "webcam: can not stop streaming")
}

func (d *Device) Close() error {
	err := d.StopPreview()
	if err1 := d.cam.Close(); err == nil {
		err = err1
	}
	return err
}

func (d *Device) capture(done chan struct{}) {
	defer d.wg.Done()

	for {
		select {
		case <-done:
			return
		default:
		}

		err := d.cam.WaitForFrame(d.timeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			if d.fail(errors.Wrap(err, "webcam: frame wait failed")) {
				return
			}
			continue
		}

		frame, err := d.cam.ReadFrame()
		if err != nil {
			if d.fail(errors.Wrap(err, "webcam: read frame failed")) {
				return
			}
			continue
		}
		if len(frame) == 0 {
			continue
		}

		if err = d.check(frame); err != nil {
			if d.fail(err) {
				return
			}
			continue
		}

		d.health.OK()

		if buf, f := d.next(frame); buf != nil && f != nil {
			f(buf)
		}
	}
}

// fail - count capture error, true when capture loop must stop
func (d *Device) fail(err error) bool {
	if d.health.Fail(err) {
		d.log.Warn().Err(err).Msg("[webcam] capture stopped")
		return true
	}
	d.log.Debug().Err(err).Send()
	return false
}

// check - packed YUYV frame without line padding
func (d *Device) check(frame []byte) error {
	d.mu.Lock()
	n := d.size.Area() * 2
	d.mu.Unlock()

	if len(frame) != n {
		return errors.Errorf("webcam: frame length %d, want %d", len(frame), n)
	}
	return nil
}

func (d *Device) CaptureErrors() (uint64, error) {
	return d.health.CaptureErrors()
}

// next - copy driver frame before it is queued back
func (d *Device) next(frame []byte) (*camera.Buffer, camera.FrameFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.onFrame == nil {
		return nil, nil
	}

	if !d.withBuffers {
		b := make([]byte, len(frame))
		copy(b, frame)
		return camera.NewBuffer(b, d.size), d.onFrame
	}

	if len(d.queue) == 0 {
		return nil, nil // no loaned buffers, frame skipped
	}

	buf := d.queue[0]
	d.queue = d.queue[1:]
	buf.Used = copy(buf.Data, frame)
	return buf, d.onFrame
}

func toSizes(frameSizes []webcam.FrameSize) []camera.Size {
	var sizes []camera.Size
	for _, fs := range frameSizes {
		max := camera.Size{Width: int(fs.MaxWidth), Height: int(fs.MaxHeight)}
		if fs.StepWidth != 0 && fs.MinWidth != fs.MaxWidth {
			if min := (camera.Size{Width: int(fs.MinWidth), Height: int(fs.MinHeight)}); min.Valid() {
				sizes = append(sizes, min)
			}
		}
		if max.Valid() {
			sizes = append(sizes, max)
		}
	}
	return sizes
}
