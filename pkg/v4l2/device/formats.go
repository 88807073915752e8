package device

const (
	V4L2_PIX_FMT_YUYV  = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	V4L2_PIX_FMT_MJPEG = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
)

type Format struct {
	FourCC uint32
	Name   string
	FFmpeg string
}

var Formats = []Format{
	{V4L2_PIX_FMT_YUYV, "YUV 4:2:2", "yuyv422"},
	{V4L2_PIX_FMT_MJPEG, "Motion-JPEG", "mjpeg"},
}

func FourCC(code uint32) string {
	return string([]byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)})
}

// FormatName - human name for known formats, fourcc otherwise
func FormatName(code uint32) string {
	for _, format := range Formats {
		if format.FourCC == code {
			return format.Name
		}
	}
	return FourCC(code)
}
