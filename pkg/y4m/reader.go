package y4m

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

type Reader struct {
	hdr Header
	rd  *bufio.Reader
}

func NewReader(r io.Reader) (*Reader, error) {
	rd := bufio.NewReaderSize(r, 64*1024)
	b, err := rd.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(b, []byte(fileHdr)) {
		return nil, errors.New("y4m: wrong header")
	}

	hdr := ParseHeader(b)
	if hdr.FrameSize() == 0 {
		return nil, errors.New("y4m: unsupported format: " + string(b[:len(b)-1]))
	}

	return &Reader{hdr: hdr, rd: rd}, nil
}

func (r *Reader) Header() Header {
	return r.hdr
}

// ReadFrame - next planar frame, io.EOF at the end of stream
func (r *Reader) ReadFrame() ([]byte, error) {
	// FRAME line may have parameters
	if _, err := r.rd.ReadSlice('\n'); err != nil {
		return nil, err
	}

	frame := make([]byte, r.hdr.FrameSize())
	if _, err := io.ReadFull(r.rd, frame); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	return frame, nil
}

// ReadPacked - up to limit 4:2:2 frames converted to packed YUYV
func ReadPacked(r io.Reader, limit int) (Header, [][]byte, error) {
	rd, err := NewReader(r)
	if err != nil {
		return Header{}, nil, err
	}

	if rd.hdr.Colorspace != "422" {
		return rd.hdr, nil, errors.New("y4m: only 422 colorspace supported")
	}

	var frames [][]byte
	for limit <= 0 || len(frames) < limit {
		frame, err := rd.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rd.hdr, nil, err
		}

		packed := make([]byte, len(frame))
		YUV2YUYV(packed, frame)
		frames = append(frames, packed)
	}

	if len(frames) == 0 {
		return rd.hdr, nil, errors.New("y4m: no frames")
	}
	return rd.hdr, frames, nil
}
