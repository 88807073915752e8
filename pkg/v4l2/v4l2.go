//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/v4l2/device"
	"github.com/rs/zerolog"
)

const DefaultTimeout = time.Second

// Driver - linux video capture nodes with packed YUYV frames
type Driver struct {
	// Buffers - user buffer slots requested from kernel
	Buffers int
	// Timeout - single poll wait
	Timeout time.Duration
	Log     zerolog.Logger
}

func (d *Driver) Devices() ([]camera.DeviceInfo, error) {
	paths, err := device.ListDevices()
	if err != nil {
		return nil, err
	}

	var infos []camera.DeviceInfo

	for _, path := range paths {
		dev, err := device.Open(path)
		if err != nil {
			continue
		}

		if c, err := dev.Capability(); err == nil && c.CanCapture() && hasYUYV(dev) {
			infos = append(infos, camera.DeviceInfo{
				ID: path, Name: c.Card, Facing: camera.FacingExternal,
			})
		}

		_ = dev.Close()
	}

	return infos, nil
}

func (d *Driver) Open(id string) (camera.Device, error) {
	dev, err := device.Open(id)
	if err != nil {
		return nil, err
	}

	c, err := dev.Capability()
	if err == nil && !c.CanCapture() {
		err = errors.New("v4l2: not a capture device: " + id)
	}
	if err != nil {
		_ = dev.Close()
		return nil, err
	}

	d.Log.Debug().Str("card", c.Card).Str("driver", c.Driver).Msgf("[v4l2] open %s", id)

	buffers := d.Buffers
	if buffers <= 0 {
		buffers = camera.DefaultBuffers
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Device{
		dev:     dev,
		buffers: uint32(buffers),
		timeout: timeout,
		log:     d.Log,
		wake:    make(chan struct{}, 1),
	}, nil
}

type Device struct {
	dev     *device.Device
	buffers uint32
	timeout time.Duration
	log     zerolog.Logger

	mu          sync.Mutex
	size        camera.Size
	format      *device.ImageFormat
	onFrame     camera.FrameFunc
	withBuffers bool
	slots       []*camera.Buffer // kernel user slots, nil is free
	requested   bool
	streaming   bool

	health camera.CaptureHealth

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

func (d *Device) Sizes() ([]camera.Size, error) {
	items, err := d.dev.ListSizes(device.V4L2_PIX_FMT_YUYV)
	if err != nil {
		return nil, err
	}
	return toSizes(items), nil
}

func (d *Device) SetSize(size camera.Size) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streaming {
		return errors.New("v4l2: set size while streaming")
	}

	if err := d.freeSlots(); err != nil {
		return err
	}

	format, err := d.dev.SetFormat(uint32(size.Width), uint32(size.Height), device.V4L2_PIX_FMT_YUYV)
	if err != nil {
		return err
	}

	if err = checkFormat(format, size); err != nil {
		return err
	}

	d.size = size
	d.format = format
	return nil
}

func (d *Device) BytesPerPixel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return bytesPerPixel(d.format, d.size)
}

func (d *Device) SetFrameCallback(f camera.FrameFunc, withBuffers bool) {
	d.mu.Lock()
	d.onFrame = f
	if f != nil {
		d.withBuffers = withBuffers
	}
	d.mu.Unlock()
}

// Loan - queue pool memory as kernel user buffer, called under pool lock
func (d *Device) Loan(buf *camera.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.format == nil {
		return errors.New("v4l2: format not set")
	}
	if len(buf.Data) < int(d.format.SizeImage) {
		return errors.New("v4l2: buffer too small")
	}

	if err := d.requestSlots(); err != nil {
		return err
	}

	i := -1
	for j, slot := range d.slots {
		if slot == nil {
			i = j
			break
		}
	}
	if i < 0 {
		return errors.New("v4l2: queue full")
	}

	if err := d.dev.Queue(uint32(i), buf.Data); err != nil {
		return err
	}

	d.slots[i] = buf

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *Device) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streaming {
		return nil
	}
	if d.format == nil {
		return errors.New("v4l2: format not set")
	}

	var err error
	if d.withBuffers {
		if err = d.requestSlots(); err == nil {
			err = d.dev.StreamOnUser()
		}
	} else {
		err = d.dev.StreamOn(d.buffers)
	}
	if err != nil {
		_ = d.freeSlots()
		_ = d.dev.StreamOff()
		return err
	}

	d.streaming = true
	d.health.Reset()
	d.done = make(chan struct{})
	d.wg.Add(1)
	go d.capture(d.withBuffers, d.done)

	d.log.Debug().Stringer("size", d.size).Bool("userptr", d.withBuffers).Msg("[v4l2] stream on")
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

	// capture loop takes the lock for every frame
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.streaming = false
	d.slots = nil
	d.requested = false
	return d.dev.StreamOff()
}

func (d *Device) CaptureErrors() (uint64, error) {
	return d.health.CaptureErrors()
}

func (d *Device) Close() error {
	err := d.StopPreview()

	d.mu.Lock()
	if err1 := d.freeSlots(); err == nil {
		err = err1
	}
	d.mu.Unlock()

	return errors.Join(err, d.dev.Close())
}

func (d *Device) requestSlots() error {
	if d.requested {
		return nil
	}

	n, err := d.dev.RequestUser(d.buffers)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("v4l2: user buffers not supported")
	}

	d.slots = make([]*camera.Buffer, n)
	d.requested = true
	return nil
}

func (d *Device) freeSlots() error {
	if !d.requested {
		return nil
	}
	d.slots = nil
	d.requested = false
	return d.dev.StreamOff()
}

func (d *Device) queued() bool {
	for _, slot := range d.slots {
		if slot != nil {
			return true
		}
	}
	return false
}

func (d *Device) capture(userptr bool, done chan struct{}) {
	defer d.wg.Done()

	for {
		if userptr {
			d.mu.Lock()
			idle := !d.queued()
			d.mu.Unlock()

			// kernel reports poll error with empty queue
			if idle {
				select {
				case <-d.wake:
					continue
				case <-done:
					return
				}
			}
		}

		select {
		case <-done:
			return
		default:
		}

		ok, err := d.dev.Wait(d.timeout)
		if err != nil {
			// device unplugged or stream broken
			if errors.Is(err, os.ErrClosed) {
				d.health.Stop(err)
				d.log.Warn().Err(err).Msg("[v4l2] wait")
				return
			}
			if d.health.Fail(err) {
				d.log.Warn().Err(err).Msg("[v4l2] wait")
				return
			}
			continue
		}
		if !ok {
			continue
		}

		buf, f, err := d.next(userptr)
		if err != nil {
			if errors.Is(err, device.ErrAgain) {
				continue
			}
			if d.health.Fail(err) {
				d.log.Warn().Err(err).Msg("[v4l2] dequeue")
				return
			}
			d.log.Debug().Err(err).Msg("[v4l2] dequeue")
			continue
		}

		d.health.OK()

		if buf != nil && f != nil {
			f(buf)
		}
	}
}

func (d *Device) next(userptr bool) (*camera.Buffer, camera.FrameFunc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !userptr {
		b, err := d.dev.Capture(nil)
		if err != nil {
			return nil, nil, err
		}
		if n := frameLen(d.size); len(b) > n {
			b = b[:n]
		}
		return camera.NewBuffer(b, d.size), d.onFrame, nil
	}

	i, used, err := d.dev.Dequeue()
	if err != nil && !errors.Is(err, device.ErrFrame) {
		return nil, nil, err
	}

	if int(i) >= len(d.slots) {
		return nil, nil, errors.New("v4l2: wrong buffer index")
	}

	buf := d.slots[i]

	if err != nil {
		// corrupted frame, same memory goes back to kernel
		if buf != nil {
			if qerr := d.dev.Queue(i, buf.Data); qerr != nil {
				d.slots[i] = nil
				return nil, nil, errors.Join(err, qerr)
			}
		}
		return nil, nil, err
	}

	d.slots[i] = nil
	if buf != nil {
		buf.Used = min(used, frameLen(d.size))
	}

	return buf, d.onFrame, nil
}

// checkFormat - driver format must be packed YUYV of requested size without line padding
func checkFormat(format *device.ImageFormat, size camera.Size) error {
	if int(format.Width) != size.Width || int(format.Height) != size.Height {
		return errors.New("v4l2: driver changed size to " +
			camera.Size{Width: int(format.Width), Height: int(format.Height)}.String())
	}
	if format.PixFmt != device.V4L2_PIX_FMT_YUYV {
		return errors.New("v4l2: unsupported format " + device.FourCC(format.PixFmt))
	}
	if line := size.Width * 2; format.BytesPerLine != 0 && int(format.BytesPerLine) != line {
		return fmt.Errorf("v4l2: padded lines not supported: %d bytes per line, want %d", format.BytesPerLine, line)
	}
	return nil
}

// frameLen - packed YUYV frame without padding
func frameLen(size camera.Size) int {
	return size.Area() * 2
}

func hasYUYV(dev *device.Device) bool {
	formats, _ := dev.ListFormats()
	for _, format := range formats {
		if format == device.V4L2_PIX_FMT_YUYV {
			return true
		}
	}
	return false
}

func toSizes(items [][2]uint32) []camera.Size {
	sizes := make([]camera.Size, 0, len(items))
	for _, item := range items {
		size := camera.Size{Width: int(item[0]), Height: int(item[1])}
		if size.Valid() {
			sizes = append(sizes, size)
		}
	}
	return sizes
}

// bytesPerPixel - enough to hold driver image size, line padding included
func bytesPerPixel(format *device.ImageFormat, size camera.Size) int {
	const yuyv = 2

	area := size.Area()
	if format == nil || area == 0 {
		return yuyv
	}

	n := (int(format.SizeImage) + area - 1) / area
	if n < yuyv {
		return yuyv
	}
	return n
}
