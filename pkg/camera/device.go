package camera

type Facing string

const (
	FacingBack     Facing = "back"
	FacingFront    Facing = "front"
	FacingExternal Facing = "external"
)

type DeviceInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Facing Facing `json:"facing,omitempty"`
	// Orientation - sensor mount angle in degrees
	Orientation int `json:"orientation,omitempty"`
}

// FrameFunc - receive filled buffer, consumer must call Buffer.Release when done
type FrameFunc func(buf *Buffer)

type Driver interface {
	Devices() ([]DeviceInfo, error)
	Open(id string) (Device, error)
}

type Device interface {
	// Sizes - candidate resolutions in device order
	Sizes() ([]Size, error)
	SetSize(size Size) error
	BytesPerPixel() int

	// SetFrameCallback - with buffers device fills only loaned buffers,
	// otherwise allocates new buffer for each frame, nil f disables delivery
	SetFrameCallback(f FrameFunc, withBuffers bool)
	StartPreview() error
	StopPreview() error

	// Loan - queue buffer for filling, must not block
	Loan(buf *Buffer) error
	Close() error
}

// FindDevice - first device with facing, or first device at all for empty facing
func FindDevice(infos []DeviceInfo, facing Facing) (DeviceInfo, bool) {
	for _, info := range infos {
		if facing == "" || info.Facing == facing {
			return info, true
		}
	}
	return DeviceInfo{}, false
}
