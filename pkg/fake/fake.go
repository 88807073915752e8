package fake

import (
	"errors"
	"sync"
	"time"

	"github.com/AlexxIT/go2cam/pkg/camera"
)

// Driver - in-memory capture devices with YUYV frames
type Driver struct {
	Infos []camera.DeviceInfo
	Sizes []camera.Size

	// Frames - optional source frames, repeated in a loop, pattern if empty
	Frames [][]byte
	// Interval - auto capture period after StartPreview, manual Frame calls if zero
	Interval time.Duration
	// OpenErr - simulate missing or busy device
	OpenErr error

	mu     sync.Mutex
	opened map[string]*Device
}

var DefaultSizes = []camera.Size{
	{Width: 640, Height: 480},
	{Width: 1280, Height: 720},
	{Width: 1920, Height: 1080},
}

func NewDriver() *Driver {
	return &Driver{
		Infos: []camera.DeviceInfo{
			{ID: "0", Name: "Fake Back", Facing: camera.FacingBack, Orientation: 90},
			{ID: "1", Name: "Fake Front", Facing: camera.FacingFront, Orientation: 270},
		},
		Sizes: DefaultSizes,
	}
}

func (d *Driver) Devices() ([]camera.DeviceInfo, error) {
	return d.Infos, nil
}

func (d *Driver) Open(id string) (camera.Device, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.exists(id) {
		return nil, errors.New("fake: device not found: " + id)
	}

	if d.opened == nil {
		d.opened = map[string]*Device{}
	}
	if d.opened[id] != nil {
		return nil, errors.New("fake: device busy: " + id)
	}

	dev := &Device{drv: d, id: id}
	d.opened[id] = dev
	return dev, nil
}

// Device - last opened device with id, nil if closed
func (d *Driver) Device(id string) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened[id]
}

func (d *Driver) exists(id string) bool {
	for _, info := range d.Infos {
		if info.ID == id {
			return true
		}
	}
	return false
}

func (d *Driver) close(id string) {
	d.mu.Lock()
	delete(d.opened, id)
	d.mu.Unlock()
}

type Device struct {
	drv *Driver
	id  string

	mu          sync.Mutex
	size        camera.Size
	onFrame     camera.FrameFunc
	withBuffers bool
	queue       []*camera.Buffer
	running     bool
	closed      bool
	seq         int

	health camera.CaptureHealth

	done chan struct{}
	wg   sync.WaitGroup
}

func (d *Device) Sizes() ([]camera.Size, error) {
	return d.drv.Sizes, nil
}

func (d *Device) SetSize(size camera.Size) error {
	if !camera.Contains(d.drv.Sizes, size) {
		return errors.New("fake: unsupported size: " + size.String())
	}

	d.mu.Lock()
	d.size = size
	d.queue = nil
	d.mu.Unlock()
	return nil
}

func (d *Device) BytesPerPixel() int {
	return 2 // YUYV
}

func (d *Device) SetFrameCallback(f camera.FrameFunc, withBuffers bool) {
	d.mu.Lock()
	d.onFrame = f
	d.withBuffers = withBuffers
	d.mu.Unlock()
}

func (d *Device) StartPreview() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.New("fake: device closed")
	}
	if d.running {
		return nil
	}

	d.running = true
	d.health.Reset()

	if d.drv.Interval > 0 {
		d.done = make(chan struct{})
		d.wg.Add(1)
		go d.worker(d.drv.Interval, d.done)
	}
	return nil
}

func (d *Device) StopPreview() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.queue = nil
	if d.done != nil {
		close(d.done)
		d.done = nil
	}
	d.mu.Unlock()

	// wait outside the lock, callback may loan buffers back
	d.wg.Wait()
	return nil
}

func (d *Device) Loan(buf *camera.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.New("fake: device closed")
	}
	if len(buf.Data) < d.size.Area()*2 {
		return errors.New("fake: buffer too small")
	}

	d.queue = append(d.queue, buf)
	return nil
}

func (d *Device) Close() error {
	_ = d.StopPreview()

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.drv.close(d.id)
	return nil
}

// Queued - number of loaned buffers waiting for frames
func (d *Device) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Fail - simulate capture failure, true when capture is stalled
func (d *Device) Fail(err error) bool {
	return d.health.Fail(err)
}

func (d *Device) CaptureErrors() (uint64, error) {
	return d.health.CaptureErrors()
}

// Frame - capture one frame, false if not running, stalled or no loaned buffers
func (d *Device) Frame() bool {
	if _, err := d.health.CaptureErrors(); err != nil {
		return false
	}

	d.mu.Lock()

	if !d.running || d.onFrame == nil {
		d.mu.Unlock()
		return false
	}

	var buf *camera.Buffer
	if d.withBuffers {
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return false
		}
		buf = d.queue[0]
		d.queue = d.queue[1:]
	} else {
		buf = camera.NewBuffer(make([]byte, d.size.Area()*2), d.size)
	}

	d.fill(buf)
	onFrame := d.onFrame
	d.mu.Unlock()

	d.health.OK()

	onFrame(buf)
	return true
}

func (d *Device) worker(interval time.Duration, done chan struct{}) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Frame()
		case <-done:
			return
		}
	}
}

func (d *Device) fill(buf *camera.Buffer) {
	n := d.size.Area() * 2

	if frames := d.drv.Frames; len(frames) > 0 {
		buf.Used = copy(buf.Data[:n], frames[d.seq%len(frames)])
	} else {
		// moving luma gradient, neutral chroma
		for i := 0; i < n; i += 2 {
			buf.Data[i] = byte(i/2 + d.seq)
			buf.Data[i+1] = 128
		}
		buf.Used = n
	}

	d.seq++
}
