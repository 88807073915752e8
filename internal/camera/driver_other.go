//go:build !linux

package camera

import (
	"errors"

	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/rs/zerolog"
)

const defaultDriver = "fake"

func NewDriver(cfg Config, _ zerolog.Logger) (camera.Driver, error) {
	switch cfg.Driver {
	case "fake", "":
		return newFakeDriver(cfg)
	}
	return nil, errors.New("camera: unsupported driver on this platform: " + cfg.Driver)
}
