package main

import (
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/y4m"
	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

func fakeGlobals() *Globals {
	return &Globals{Driver: "fake", Facing: "back", Buffers: 4, LogLevel: "error"}
}

func TestParse(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	require.Nil(t, err)

	ctx, err := parser.Parse([]string{"-d", "fake", "select", "1000x1000", "--sizes", "720x1280,1280x720", "--previous", "720x1280"})
	require.Nil(t, err)
	require.Equal(t, "select <target>", ctx.Command())
	require.Equal(t, "fake", cli.Driver)
	require.Equal(t, camera.Size{Width: 1000, Height: 1000}, cli.Select.Target)
	require.Equal(t, camera.Size{Width: 720, Height: 1280}, cli.Select.Previous)
	require.Equal(t, []string{"720x1280", "1280x720"}, cli.Select.Sizes)

	_, err = parser.Parse([]string{"select", "abc"})
	require.NotNil(t, err)
}

func TestSelect(t *testing.T) {
	g := fakeGlobals()

	c := &SelectCmd{Target: camera.Size{Width: 1280, Height: 720}}
	require.Nil(t, c.Run(g))

	c = &SelectCmd{Target: camera.Size{Width: 1280, Height: 720}, Sizes: []string{"640x480"}}
	require.Nil(t, c.Run(g))

	c = &SelectCmd{Target: camera.Size{Width: 1280, Height: 720}, Sizes: []string{"640"}}
	require.NotNil(t, c.Run(g))
}

func TestCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.y4m")

	c := &CaptureCmd{Output: path, Target: camera.Size{Width: 640, Height: 480}, Frames: 3}
	require.Nil(t, c.Run(fakeGlobals()))

	f, err := os.Open(path)
	require.Nil(t, err)
	defer f.Close()

	hdr, frames, err := y4m.ReadPacked(f, 0)
	require.Nil(t, err)
	require.Equal(t, 640, hdr.Width)
	require.GreaterOrEqual(t, len(frames), 3)
}

func TestSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jpg")

	c := &SnapshotCmd{Output: path, Target: camera.Size{Width: 640, Height: 480}, Quality: 80, Timeout: 5e9}
	require.Nil(t, c.Run(fakeGlobals()))

	f, err := os.Open(path)
	require.Nil(t, err)
	defer f.Close()

	cfg, err := jpeg.DecodeConfig(f)
	require.Nil(t, err)
	require.Equal(t, 640, cfg.Width)
	require.Equal(t, 480, cfg.Height)
}

func TestDevices(t *testing.T) {
	require.Nil(t, (&DevicesCmd{}).Run(fakeGlobals()))
}
