package y4m

import (
	"bytes"
	"image"
	"strconv"
)

const FourCC = "YUV4"

const (
	fileHdr  = "YUV4MPEG2"
	frameHdr = "FRAME\n"
)

// Header - stream parameters, only size and colorspace used
type Header struct {
	Width      int
	Height     int
	Colorspace string
}

func ParseHeader(b []byte) (hdr Header) {
	b = bytes.TrimSuffix(b, []byte{'\n'})
	b = bytes.TrimPrefix(b, []byte(fileHdr))

	for len(b) > 0 {
		// YUV4MPEG2 W1280 H720 F24:1 Ip A1:1 C420mpeg2 XYSCSS=420MPEG2
		// https://manned.org/yuv4mpeg.5
		// https://github.com/FFmpeg/FFmpeg/blob/master/libavformat/yuv4mpegenc.c
		var field []byte
		if i := bytes.IndexByte(b, ' '); i >= 0 {
			field = b[:i]
			b = b[i+1:]
		} else {
			field = b
			b = nil
		}

		if len(field) == 0 {
			continue
		}

		value := string(field[1:])

		switch field[0] {
		case 'W':
			hdr.Width, _ = strconv.Atoi(value)
		case 'H':
			hdr.Height, _ = strconv.Atoi(value)
		case 'C':
			hdr.Colorspace = value
		}
	}

	if hdr.Colorspace == "" {
		hdr.Colorspace = "420jpeg" // format default
	}
	return
}

func (h Header) String() string {
	return fileHdr + " W" + strconv.Itoa(h.Width) + " H" + strconv.Itoa(h.Height) + " C" + h.Colorspace + "\n"
}

// FrameSize - planar frame length, zero for unsupported colorspace
func (h Header) FrameSize() int {
	w, h1 := h.Width, h.Height
	if w <= 0 || h1 <= 0 {
		return 0
	}

	switch h.Colorspace {
	case "mono":
		return w * h1
	case "420mpeg2", "420jpeg", "420paldv", "420":
		return w * h1 * 3 / 2
	case "422":
		return w * h1 * 2
	case "444":
		return w * h1 * 3
	}

	return 0
}

func NewImage(hdr Header) func(frame []byte) image.Image {
	w, h := hdr.Width, hdr.Height
	rect := image.Rect(0, 0, w, h)

	switch hdr.Colorspace {
	case "mono":
		return func(frame []byte) image.Image {
			return &image.Gray{
				Pix:    frame,
				Stride: w,
				Rect:   rect,
			}
		}
	case "420mpeg2", "420jpeg", "420paldv", "420":
		i1 := w * h
		i2 := i1 + i1/4
		i3 := i2 + i1/4

		return func(frame []byte) image.Image {
			return &image.YCbCr{
				Y:              frame[:i1],
				Cb:             frame[i1:i2],
				Cr:             frame[i2:i3],
				YStride:        w,
				CStride:        w / 2,
				SubsampleRatio: image.YCbCrSubsampleRatio420,
				Rect:           rect,
			}
		}
	case "422":
		i1 := w * h
		i2 := i1 + i1/2
		i3 := i2 + i1/2

		return func(frame []byte) image.Image {
			return &image.YCbCr{
				Y:              frame[:i1],
				Cb:             frame[i1:i2],
				Cr:             frame[i2:i3],
				YStride:        w,
				CStride:        w / 2,
				SubsampleRatio: image.YCbCrSubsampleRatio422,
				Rect:           rect,
			}
		}
	case "444":
		i1 := w * h
		i2 := i1 + i1
		i3 := i2 + i1

		return func(frame []byte) image.Image {
			return &image.YCbCr{
				Y:              frame[:i1],
				Cb:             frame[i1:i2],
				Cr:             frame[i2:i3],
				YStride:        w,
				CStride:        w,
				SubsampleRatio: image.YCbCrSubsampleRatio444,
				Rect:           rect,
			}
		}
	}

	return nil
}

// YUYV2YUV convert packed YUV to planar YUV
func YUYV2YUV(dst, src []byte) {
	n := len(src)
	i0 := 0
	iy := 0
	iu := n / 2
	iv := n / 4 * 3
	for i0 < n {
		dst[iy] = src[i0]
		i0++
		iy++
		dst[iu] = src[i0]
		i0++
		iu++
		dst[iy] = src[i0]
		i0++
		iy++
		dst[iv] = src[i0]
		i0++
		iv++
	}
}

// YUV2YUYV convert planar YUV 4:2:2 to packed YUV
func YUV2YUYV(dst, src []byte) {
	n := len(src)
	iy := 0
	iu := n / 2
	iv := n / 4 * 3
	for i0 := 0; i0+3 < n; i0 += 4 {
		dst[i0] = src[iy]
		dst[i0+1] = src[iu]
		dst[i0+2] = src[iy+1]
		dst[i0+3] = src[iv]
		iy += 2
		iu++
		iv++
	}
}
