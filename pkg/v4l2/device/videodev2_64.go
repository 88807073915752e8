//go:build linux && (amd64 || arm64)

package device

type v4l2_format struct {
	typ uint32
	_   [4]byte // union aligned to pointer
	pix v4l2_pix_format
	_   [152]byte
}

type v4l2_buffer struct {
	index     uint32        // 0
	typ       uint32        // 4
	bytesused uint32        // 8
	flags     uint32        // 12
	field     uint32        // 16
	_         [4]byte       // 20
	timestamp [16]byte      // 24
	timecode  v4l2_timecode // 40
	sequence  uint32        // 56
	memory    uint32        // 60
	m         uint64        // 64 offset or userptr
	length    uint32        // 72
	_         uint32        // 76
	_         uint32        // 80 request_fd
	_         [4]byte       // 84
}

func (b *v4l2_buffer) offset() int64 {
	return int64(uint32(b.m))
}

func (b *v4l2_buffer) setUserPtr(p uintptr) {
	b.m = uint64(p)
}

func (b *v4l2_buffer) userPtr() uintptr {
	return uintptr(b.m)
}
