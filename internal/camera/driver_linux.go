package camera

import (
	"errors"

	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/v4l2"
	"github.com/AlexxIT/go2cam/pkg/webcam"
	"github.com/rs/zerolog"
)

const defaultDriver = "v4l2"

func NewDriver(cfg Config, log zerolog.Logger) (camera.Driver, error) {
	switch cfg.Driver {
	case "v4l2", "":
		return &v4l2.Driver{Buffers: cfg.Buffers, Log: log}, nil
	case "webcam":
		return &webcam.Driver{Buffers: cfg.Buffers, Log: log}, nil
	case "fake":
		return newFakeDriver(cfg)
	}
	return nil, errors.New("camera: unsupported driver: " + cfg.Driver)
}
