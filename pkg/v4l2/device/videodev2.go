//go:build linux

package device

import (
	"unsafe"

	"github.com/AlexxIT/go2cam/pkg/ioctl"
)

// https://github.com/torvalds/linux/blob/master/include/uapi/linux/videodev2.h

var (
	VIDIOC_QUERYCAP  = ioctl.IOR('V', 0, uint16(unsafe.Sizeof(v4l2_capability{})))
	VIDIOC_ENUM_FMT  = ioctl.IORW('V', 2, uint16(unsafe.Sizeof(v4l2_fmtdesc{})))
	VIDIOC_G_FMT     = ioctl.IORW('V', 4, uint16(unsafe.Sizeof(v4l2_format{})))
	VIDIOC_S_FMT     = ioctl.IORW('V', 5, uint16(unsafe.Sizeof(v4l2_format{})))
	VIDIOC_REQBUFS   = ioctl.IORW('V', 8, uint16(unsafe.Sizeof(v4l2_requestbuffers{})))
	VIDIOC_QUERYBUF  = ioctl.IORW('V', 9, uint16(unsafe.Sizeof(v4l2_buffer{})))
	VIDIOC_QBUF      = ioctl.IORW('V', 15, uint16(unsafe.Sizeof(v4l2_buffer{})))
	VIDIOC_DQBUF     = ioctl.IORW('V', 17, uint16(unsafe.Sizeof(v4l2_buffer{})))
	VIDIOC_STREAMON  = ioctl.IOW('V', 18, 4)
	VIDIOC_STREAMOFF = ioctl.IOW('V', 19, 4)
	VIDIOC_S_PARM    = ioctl.IORW('V', 22, uint16(unsafe.Sizeof(v4l2_streamparm{})))

	VIDIOC_ENUM_FRAMESIZES     = ioctl.IORW('V', 74, uint16(unsafe.Sizeof(v4l2_frmsizeenum{})))
	VIDIOC_ENUM_FRAMEINTERVALS = ioctl.IORW('V', 75, uint16(unsafe.Sizeof(v4l2_frmivalenum{})))
)

const (
	V4L2_BUF_TYPE_VIDEO_CAPTURE = 1
	V4L2_COLORSPACE_DEFAULT     = 0
	V4L2_FIELD_NONE             = 1
	V4L2_FRMIVAL_TYPE_DISCRETE  = 1
	V4L2_FRMSIZE_TYPE_DISCRETE  = 1
	V4L2_MEMORY_MMAP            = 1
	V4L2_MEMORY_USERPTR         = 2

	V4L2_CAP_VIDEO_CAPTURE = 0x00000001
	V4L2_CAP_STREAMING     = 0x04000000
	V4L2_CAP_DEVICE_CAPS   = 0x80000000

	V4L2_BUF_FLAG_ERROR = 0x00000040
)

type v4l2_capability struct {
	driver       [16]byte
	card         [32]byte
	bus_info     [32]byte
	version      uint32
	capabilities uint32
	device_caps  uint32
	reserved     [3]uint32
}

type v4l2_pix_format struct {
	width        uint32 // 0
	height       uint32 // 4
	pixelformat  uint32 // 8
	field        uint32 // 12
	bytesperline uint32 // 16
	sizeimage    uint32 // 20
	colorspace   uint32 // 24
	priv         uint32 // 28
	flags        uint32 // 32
	ycbcr_enc    uint32 // 36
	quantization uint32 // 40
	xfer_func    uint32 // 44
}

type v4l2_streamparm struct {
	typ     uint32
	capture v4l2_captureparm
}

type v4l2_captureparm struct {
	capability   uint32     // 0
	capturemode  uint32     // 4
	timeperframe v4l2_fract // 8
	extendedmode uint32     // 16
	readbuffers  uint32     // 20

	_ [176]byte // 24
}

type v4l2_fract struct {
	numerator   uint32
	denominator uint32
}

type v4l2_requestbuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

type v4l2_timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

type v4l2_fmtdesc struct {
	index       uint32
	typ         uint32
	flags       uint32
	description [32]byte
	pixelformat uint32
	mbus_code   uint32
	reserved    [3]uint32
}

type v4l2_frmsizeenum struct {
	index        uint32                // 0
	pixel_format uint32                // 4
	typ          uint32                // 8
	discrete     v4l2_frmsize_discrete // 12
	_            [24]byte
}

type v4l2_frmsize_discrete struct {
	width  uint32
	height uint32
}

type v4l2_frmivalenum struct {
	index        uint32
	pixel_format uint32
	width        uint32
	height       uint32
	typ          uint32
	discrete     v4l2_fract
	_            [24]byte
}
