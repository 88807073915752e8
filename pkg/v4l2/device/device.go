//go:build linux

package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unsafe"

	"github.com/AlexxIT/go2cam/pkg/ioctl"
	"golang.org/x/sys/unix"
)

type Device struct {
	path   string
	fd     int
	memory uint32
	bufs   [][]byte
}

func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &Device{path: path, fd: fd}, nil
}

// ListDevices - all /dev/video* nodes, sorted by name
func ListDevices() ([]string, error) {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (d *Device) Path() string {
	return d.path
}

type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      string
	Capabilities uint32
}

// CanCapture - streaming video capture node, not metadata or output
func (c *Capability) CanCapture() bool {
	const need = V4L2_CAP_VIDEO_CAPTURE | V4L2_CAP_STREAMING
	return c.Capabilities&need == need
}

func (d *Device) Capability() (*Capability, error) {
	c := v4l2_capability{}
	if err := ioctl.Ioctl(d.fd, VIDIOC_QUERYCAP, unsafe.Pointer(&c)); err != nil {
		return nil, err
	}

	caps := c.capabilities
	if caps&V4L2_CAP_DEVICE_CAPS != 0 {
		caps = c.device_caps
	}

	return &Capability{
		Driver:       ioctl.Str(c.driver[:]),
		Card:         ioctl.Str(c.card[:]),
		BusInfo:      ioctl.Str(c.bus_info[:]),
		Version:      fmt.Sprintf("%d.%d.%d", byte(c.version>>16), byte(c.version>>8), byte(c.version)),
		Capabilities: caps,
	}, nil
}

func (d *Device) ListFormats() ([]uint32, error) {
	var items []uint32

	for i := uint32(0); ; i++ {
		fd := v4l2_fmtdesc{
			index: i,
			typ:   V4L2_BUF_TYPE_VIDEO_CAPTURE,
		}
		if err := ioctl.Ioctl(d.fd, VIDIOC_ENUM_FMT, unsafe.Pointer(&fd)); err != nil {
			if !errors.Is(err, unix.EINVAL) {
				return nil, err
			}
			break
		}

		items = append(items, fd.pixelformat)
	}

	return items, nil
}

func (d *Device) ListSizes(pixFmt uint32) ([][2]uint32, error) {
	var items [][2]uint32

	for i := uint32(0); ; i++ {
		fs := v4l2_frmsizeenum{
			index:        i,
			pixel_format: pixFmt,
		}
		if err := ioctl.Ioctl(d.fd, VIDIOC_ENUM_FRAMESIZES, unsafe.Pointer(&fs)); err != nil {
			if !errors.Is(err, unix.EINVAL) {
				return nil, err
			}
			break
		}

		if fs.typ != V4L2_FRMSIZE_TYPE_DISCRETE {
			continue
		}

		items = append(items, [2]uint32{fs.discrete.width, fs.discrete.height})
	}

	return items, nil
}

func (d *Device) ListFrameRates(pixFmt, width, height uint32) ([]uint32, error) {
	var items []uint32

	for i := uint32(0); ; i++ {
		fi := v4l2_frmivalenum{
			index:        i,
			pixel_format: pixFmt,
			width:        width,
			height:       height,
		}
		if err := ioctl.Ioctl(d.fd, VIDIOC_ENUM_FRAMEINTERVALS, unsafe.Pointer(&fi)); err != nil {
			if !errors.Is(err, unix.EINVAL) {
				return nil, err
			}
			break
		}

		if fi.typ != V4L2_FRMIVAL_TYPE_DISCRETE || fi.discrete.numerator != 1 {
			continue
		}

		items = append(items, fi.discrete.denominator)
	}

	return items, nil
}

type ImageFormat struct {
	Width        uint32
	Height       uint32
	PixFmt       uint32
	BytesPerLine uint32
	SizeImage    uint32
}

// SetFormat - driver may adjust size, real values returned
func (d *Device) SetFormat(width, height, pixFmt uint32) (*ImageFormat, error) {
	f := v4l2_format{
		typ: V4L2_BUF_TYPE_VIDEO_CAPTURE,
		pix: v4l2_pix_format{
			width:       width,
			height:      height,
			pixelformat: pixFmt,
			field:       V4L2_FIELD_NONE,
			colorspace:  V4L2_COLORSPACE_DEFAULT,
		},
	}
	if err := ioctl.Ioctl(d.fd, VIDIOC_S_FMT, unsafe.Pointer(&f)); err != nil {
		return nil, err
	}
	return &ImageFormat{
		Width:        f.pix.width,
		Height:       f.pix.height,
		PixFmt:       f.pix.pixelformat,
		BytesPerLine: f.pix.bytesperline,
		SizeImage:    f.pix.sizeimage,
	}, nil
}

func (d *Device) SetParam(fps uint32) error {
	p := v4l2_streamparm{
		typ: V4L2_BUF_TYPE_VIDEO_CAPTURE,
		capture: v4l2_captureparm{
			timeperframe: v4l2_fract{numerator: 1, denominator: fps},
		},
	}
	return ioctl.Ioctl(d.fd, VIDIOC_S_PARM, unsafe.Pointer(&p))
}

func (d *Device) requestBuffers(count, memory uint32) (uint32, error) {
	rb := v4l2_requestbuffers{
		count:  count,
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: memory,
	}
	if err := ioctl.Ioctl(d.fd, VIDIOC_REQBUFS, unsafe.Pointer(&rb)); err != nil {
		return 0, err
	}
	return rb.count, nil
}

// StreamOn - start capture with count driver (mmap) buffers
func (d *Device) StreamOn(count uint32) (err error) {
	if count, err = d.requestBuffers(count, V4L2_MEMORY_MMAP); err != nil {
		return err
	}

	d.memory = V4L2_MEMORY_MMAP
	d.bufs = make([][]byte, count)

	for i := uint32(0); i < count; i++ {
		qb := v4l2_buffer{
			index:  i,
			typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
			memory: V4L2_MEMORY_MMAP,
		}
		if err = ioctl.Ioctl(d.fd, VIDIOC_QUERYBUF, unsafe.Pointer(&qb)); err != nil {
			return err
		}

		if d.bufs[i], err = unix.Mmap(
			d.fd, qb.offset(), int(qb.length), unix.PROT_READ, unix.MAP_SHARED,
		); err != nil {
			return err
		}

		if err = ioctl.Ioctl(d.fd, VIDIOC_QBUF, unsafe.Pointer(&qb)); err != nil {
			return err
		}
	}

	return d.streamOn()
}

// RequestUser - prepare up to count slots for user memory buffers,
// returns count granted by driver
func (d *Device) RequestUser(count uint32) (uint32, error) {
	count, err := d.requestBuffers(count, V4L2_MEMORY_USERPTR)
	if err != nil {
		return 0, err
	}
	d.memory = V4L2_MEMORY_USERPTR
	return count, nil
}

// StreamOnUser - start capture into buffers passed with Queue
func (d *Device) StreamOnUser() error {
	if d.memory != V4L2_MEMORY_USERPTR {
		return errors.New("v4l2: user buffers not requested")
	}
	return d.streamOn()
}

func (d *Device) streamOn() error {
	typ := uint32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	return ioctl.Ioctl(d.fd, VIDIOC_STREAMON, unsafe.Pointer(&typ))
}

// StreamOff - stop capture, driver forget all queued buffers
func (d *Device) StreamOff() (err error) {
	if d.memory == 0 {
		return nil
	}

	typ := uint32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	err = ioctl.Ioctl(d.fd, VIDIOC_STREAMOFF, unsafe.Pointer(&typ))

	for i := range d.bufs {
		_ = unix.Munmap(d.bufs[i])
	}
	d.bufs = nil

	if _, err1 := d.requestBuffers(0, d.memory); err == nil {
		err = err1
	}

	d.memory = 0
	return
}

// Queue - give user memory to driver in slot index
func (d *Device) Queue(index uint32, b []byte) error {
	if len(b) == 0 {
		return errors.New("v4l2: empty buffer")
	}

	qb := v4l2_buffer{
		index:  index,
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_USERPTR,
		length: uint32(len(b)),
	}
	qb.setUserPtr(uintptr(unsafe.Pointer(&b[0])))
	return ioctl.Ioctl(d.fd, VIDIOC_QBUF, unsafe.Pointer(&qb))
}

var ErrAgain = errors.New("v4l2: no frame")

// ErrFrame - driver flagged frame data as corrupted, buffer index still valid
var ErrFrame = errors.New("v4l2: corrupted frame")

func frameUsed(flags, bytesused uint32) (int, error) {
	if flags&V4L2_BUF_FLAG_ERROR != 0 {
		return 0, ErrFrame
	}
	return int(bytesused), nil
}

// Dequeue - take filled user buffer back, ErrAgain if nothing ready,
// ErrFrame with index of buffer to queue again
func (d *Device) Dequeue() (index uint32, used int, err error) {
	qb := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_USERPTR,
	}
	if err = ioctl.Ioctl(d.fd, VIDIOC_DQBUF, unsafe.Pointer(&qb)); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			err = ErrAgain
		}
		return
	}

	used, err = frameUsed(qb.flags, qb.bytesused)
	return qb.index, used, err
}

// Capture - copy next mmap frame into dst, ErrAgain if nothing ready
func (d *Device) Capture(dst []byte) ([]byte, error) {
	dec := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := ioctl.Ioctl(d.fd, VIDIOC_DQBUF, unsafe.Pointer(&dec)); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil, ErrAgain
		}
		return nil, err
	}

	used, ferr := frameUsed(dec.flags, dec.bytesused)
	if ferr == nil {
		src := d.bufs[dec.index][:used]
		if cap(dst) < len(src) {
			dst = make([]byte, len(src))
		}
		dst = dst[:len(src)]
		copy(dst, src)
	}

	enc := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
		index:  dec.index,
	}
	if err := ioctl.Ioctl(d.fd, VIDIOC_QBUF, unsafe.Pointer(&enc)); err != nil {
		return nil, err
	}

	if ferr != nil {
		return nil, ferr
	}
	return dst, nil
}

// Wait - block until frame ready or timeout, false on timeout
func (d *Device) Wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		if n > 0 && fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
			return false, os.ErrClosed
		}
		return n > 0, nil
	}
}

func (d *Device) Close() error {
	return unix.Close(d.fd)
}
