package main

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AlexxIT/go2cam/internal/app"
	icamera "github.com/AlexxIT/go2cam/internal/camera"
	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/y4m"
	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
)

type Globals struct {
	Driver   string `short:"d" default:"v4l2" enum:"v4l2,webcam,fake" help:"Capture driver."`
	Device   string `short:"D" help:"Device id, name or index (default: first back facing)."`
	Facing   string `default:"back" enum:"back,front,external" help:"Preferred facing for default device."`
	Source   string `help:"Y4M 4:2:2 file with frames for fake driver."`
	Buffers  int    `default:"4" help:"Frame buffers in pool."`
	NoReuse  bool   `help:"Allocate buffer for each frame instead of loaning pool buffers."`
	LogLevel string `short:"l" default:"info" enum:"trace,debug,info,warn,error" help:"Log level."`
}

type CLI struct {
	Globals

	Devices  DevicesCmd  `cmd:"" help:"List capture devices and resolutions."`
	Select   SelectCmd   `cmd:"" help:"Negotiate resolution for target surface."`
	Capture  CaptureCmd  `cmd:"" help:"Record raw frames to Y4M file."`
	Snapshot SnapshotCmd `cmd:"" help:"Save one frame as JPEG."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

func main() {
	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("camctl"),
		kong.Description("Probe and capture from camera devices."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

func (g *Globals) logger() zerolog.Logger {
	return app.NewLogger(map[string]string{"output": "stderr", "level": g.LogLevel})
}

func (g *Globals) config() icamera.Config {
	cfg := icamera.DefaultConfig()
	cfg.Driver = g.Driver
	cfg.Device = g.Device
	cfg.Facing = g.Facing
	cfg.Source = g.Source
	cfg.Buffers = g.Buffers
	cfg.Reuse = !g.NoReuse
	return cfg
}

func (g *Globals) driver() (camera.Driver, error) {
	return icamera.NewDriver(g.config(), g.logger())
}

// session - opened session for selected device
func (g *Globals) session() (*camera.Session, error) {
	drv, err := g.driver()
	if err != nil {
		return nil, err
	}

	infos, err := drv.Devices()
	if err != nil {
		return nil, err
	}

	info, err := icamera.LookupDevice(infos, g.Device, camera.Facing(g.Facing))
	if err != nil {
		return nil, err
	}

	log := g.logger()
	s := camera.NewSession(drv, info, camera.Options{Buffers: g.Buffers, Reuse: !g.NoReuse, Logger: &log})
	if err = s.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

type DevicesCmd struct{}

func (c *DevicesCmd) Run(g *Globals) error {
	drv, err := g.driver()
	if err != nil {
		return err
	}

	infos, err := drv.Devices()
	if err != nil {
		return err
	}

	for _, info := range infos {
		fmt.Printf("%s\t%s\t%s\n", info.ID, info.Name, info.Facing)

		dev, err := drv.Open(info.ID)
		if err != nil {
			fmt.Printf("\terror: %s\n", err)
			continue
		}

		if sizes, err := dev.Sizes(); err == nil {
			fmt.Printf("\t%s\n", joinSizes(sizes))
		}

		_ = dev.Close()
	}

	return nil
}

type SelectCmd struct {
	Target   camera.Size `arg:"" help:"Target surface size, WxH."`
	Previous camera.Size `help:"Previously selected resolution, WxH."`
	Sizes    []string    `help:"Candidate list instead of device query."`
	Rotation int         `help:"Display rotation in degrees."`
	MaxArea  int         `help:"Upper bound on candidate area."`
}

func (c *SelectCmd) Run(g *Globals) error {
	env := camera.Env{Rotation: camera.DisplayRotation(c.Rotation), MaxArea: c.MaxArea}

	if len(c.Sizes) > 0 {
		var candidates []camera.Size
		for _, s := range c.Sizes {
			size, err := camera.ParseSize(s)
			if err != nil {
				return err
			}
			candidates = append(candidates, size)
		}

		size, ok := camera.Select(c.Previous, candidates, c.Target, env)
		if !ok {
			return camera.ErrNoCandidates
		}
		fmt.Println(size)
		return nil
	}

	s, err := g.session()
	if err != nil {
		return err
	}
	defer s.Release()

	size, err := s.SelectResolution(c.Previous, c.Target, env)
	if err != nil {
		return err
	}

	fmt.Printf("%s\tfrom %s\n", size, joinSizes(s.AvailableResolutions()))
	return nil
}

type CaptureCmd struct {
	Output   string        `short:"o" required:"" help:"Output Y4M file path."`
	Target   camera.Size   `short:"t" default:"1280x720" help:"Target surface size, WxH."`
	Frames   uint64        `short:"n" default:"30" help:"Frames to record, 0 until signal."`
	Duration time.Duration `help:"Stop after duration."`
}

func (c *CaptureCmd) Run(g *Globals) error {
	s, err := g.session()
	if err != nil {
		return err
	}
	defer s.Release()

	size, err := s.StartPreview(c.Target, camera.Env{})
	if err != nil {
		return err
	}

	f, err := os.Create(c.Output)
	if err != nil {
		return err
	}

	rec, err := s.StartRecording(f)
	if err != nil {
		_ = f.Close()
		return err
	}

	ctx, cancel := signalContext(c.Duration)
	defer cancel()

	start := s.Stats().Frames

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if c.Frames > 0 && s.Stats().Frames-start >= c.Frames {
				break loop
			}
		}
	}

	s.StopRecording()

	if err = rec.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}

	fmt.Printf("%s\t%s\t%d frames\n", c.Output, size, rec.Frames)
	return nil
}

type SnapshotCmd struct {
	Output  string        `short:"o" required:"" help:"Output JPEG file path."`
	Target  camera.Size   `short:"t" default:"1280x720" help:"Target surface size, WxH."`
	Quality int           `short:"q" default:"85" help:"JPEG quality."`
	Timeout time.Duration `default:"5s" help:"Wait for frame."`
}

func (c *SnapshotCmd) Run(g *Globals) error {
	s, err := g.session()
	if err != nil {
		return err
	}
	defer s.Release()

	frames := make(chan []byte, 1)
	s.OnFrame(func(buf *camera.Buffer) {
		select {
		case frames <- append([]byte(nil), buf.Bytes()...):
		default:
		}
		buf.Release()
	})

	size, err := s.StartPreview(c.Target, camera.Env{})
	if err != nil {
		return err
	}

	var yuyv []byte
	select {
	case yuyv = <-frames:
	case <-time.After(c.Timeout):
		return fmt.Errorf("camctl: no frame in %s", c.Timeout)
	}

	hdr := y4m.Header{Width: size.Width, Height: size.Height, Colorspace: "422"}
	if len(yuyv) < hdr.FrameSize() {
		return fmt.Errorf("camctl: short frame: %d", len(yuyv))
	}

	planar := make([]byte, hdr.FrameSize())
	y4m.YUYV2YUV(planar, yuyv[:hdr.FrameSize()])

	f, err := os.Create(c.Output)
	if err != nil {
		return err
	}

	img := y4m.NewImage(hdr)(planar)
	if err = jpeg.Encode(f, img, &jpeg.Options{Quality: c.Quality}); err != nil {
		_ = f.Close()
		return err
	}

	fmt.Printf("%s\t%s\n", c.Output, size)
	return f.Close()
}

type VersionCmd struct{}

func (c *VersionCmd) Run(_ *Globals) error {
	fmt.Println("camctl version " + app.Version)
	return nil
}

func joinSizes(sizes []camera.Size) string {
	items := make([]string, len(sizes))
	for i, size := range sizes {
		items[i] = size.String()
	}
	return strings.Join(items, " ")
}

func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, cancel
	}

	ctx, cancel2 := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel2()
		cancel()
	}
}
