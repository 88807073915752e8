//go:build linux && (386 || arm)

package device

type v4l2_format struct {
	typ uint32
	pix v4l2_pix_format
	_   [152]byte
}

type v4l2_buffer struct {
	index     uint32        // 0
	typ       uint32        // 4
	bytesused uint32        // 8
	flags     uint32        // 12
	field     uint32        // 16
	timestamp [8]byte       // 20
	timecode  v4l2_timecode // 28
	sequence  uint32        // 44
	memory    uint32        // 48
	m         uint32        // 52 offset or userptr
	length    uint32        // 56
	_         uint32        // 60
	_         uint32        // 64 request_fd
}

func (b *v4l2_buffer) offset() int64 {
	return int64(b.m)
}

func (b *v4l2_buffer) setUserPtr(p uintptr) {
	b.m = uint32(p)
}

func (b *v4l2_buffer) userPtr() uintptr {
	return uintptr(b.m)
}
