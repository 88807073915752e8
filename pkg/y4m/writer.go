package y4m

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Recorder - YUV4MPEG2 writer for packed YUYV frames
type Recorder struct {
	hdr   Header
	mu    sync.Mutex
	wr    *bufio.Writer
	plane []byte

	Frames int
	Bytes  int
}

func NewRecorder(w io.Writer, width, height int) (*Recorder, error) {
	hdr := Header{Width: width, Height: height, Colorspace: "422"}
	if hdr.FrameSize() == 0 || width%2 != 0 {
		return nil, errors.New("y4m: unsupported frame size")
	}

	wr := bufio.NewWriterSize(w, 64*1024)
	if _, err := wr.WriteString(hdr.String()); err != nil {
		return nil, err
	}

	return &Recorder{hdr: hdr, wr: wr, plane: make([]byte, hdr.FrameSize())}, nil
}

func (r *Recorder) Header() Header {
	return r.hdr
}

var ErrFrameSize = errors.New("y4m: frame size not match header")

// WriteFrame - one packed YUYV frame of header size without line padding
func (r *Recorder) WriteFrame(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(b) != len(r.plane) {
		return fmt.Errorf("%w: %d != %d", ErrFrameSize, len(b), len(r.plane))
	}

	YUYV2YUV(r.plane, b)

	if _, err := r.wr.WriteString(frameHdr); err != nil {
		return err
	}
	n, err := r.wr.Write(r.plane)
	if err != nil {
		return err
	}

	r.Frames++
	r.Bytes += len(frameHdr) + n
	return nil
}

func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wr.Flush()
}
