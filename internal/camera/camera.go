package camera

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/AlexxIT/go2cam/internal/api"
	"github.com/AlexxIT/go2cam/internal/api/ws"
	"github.com/AlexxIT/go2cam/internal/app"
	"github.com/AlexxIT/go2cam/pkg/camera"
	"github.com/AlexxIT/go2cam/pkg/fake"
	"github.com/AlexxIT/go2cam/pkg/y4m"
	"github.com/rs/zerolog"
)

type Config struct {
	Driver string `yaml:"driver"`
	// Device - id, name or index in devices list, first device with Facing if empty
	Device string `yaml:"device"`
	Facing string `yaml:"facing"`
	// Source - y4m file with 4:2:2 frames for fake driver
	Source string `yaml:"source"`
	FPS    int    `yaml:"fps"`

	Buffers    int    `yaml:"buffers"`
	Reuse      bool   `yaml:"reuse_buffers"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Rotation   int    `yaml:"rotation"`
	MaxArea    int    `yaml:"max_area"`
	Resolution string `yaml:"resolution"`
	Autostart  bool   `yaml:"autostart"`
	RecordDir  string `yaml:"record_dir"`
}

func DefaultConfig() Config {
	return Config{
		Driver:  defaultDriver,
		Facing:  string(camera.FacingBack),
		FPS:     30,
		Buffers: camera.DefaultBuffers,
		Reuse:   true,
		Width:   1280,
		Height:  720,
	}
}

func Init() {
	var cfg struct {
		Mod Config `yaml:"camera"`
	}

	cfg.Mod = DefaultConfig()

	app.LoadConfig(&cfg)

	log := app.GetLogger("camera")

	m, err := NewModule(cfg.Mod, log)
	if err != nil {
		log.Error().Err(err).Msg("[camera] init")
		return
	}

	api.HandleFunc("api/camera", m.apiCamera)
	api.HandleFunc("api/camera/devices", m.apiDevices)
	api.HandleFunc("api/camera/open", m.apiOpen)
	api.HandleFunc("api/camera/release", m.apiRelease)
	api.HandleFunc("api/camera/preview", m.apiPreview)
	api.HandleFunc("api/camera/resolution", m.apiResolution)
	api.HandleFunc("api/camera/record", m.apiRecord)

	ws.HandleFunc("camera", m.wsCamera)

	module = m

	if cfg.Mod.Autostart {
		if err = m.Autostart(); err != nil {
			log.Error().Err(err).Msg("[camera] autostart")
		}
	}
}

// Close - stop recording and release device on exit
func Close() {
	if module != nil {
		module.Close()
	}
}

var module *Module

var errRecording = errors.New("camera: already recording")

// Module - single camera session with recording to file
type Module struct {
	cfg     Config
	driver  camera.Driver
	session *camera.Session
	log     zerolog.Logger

	mu   sync.Mutex
	rec  *recording
	subs map[*ws.Transport]struct{}
}

type recording struct {
	path    string
	file    *os.File
	rec     *y4m.Recorder
	started time.Time
}

func NewModule(cfg Config, log zerolog.Logger) (*Module, error) {
	drv, err := NewDriver(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewModuleWithDriver(cfg, drv, log)
}

func NewModuleWithDriver(cfg Config, drv camera.Driver, log zerolog.Logger) (*Module, error) {
	infos, err := drv.Devices()
	if err != nil {
		return nil, err
	}

	info, err := LookupDevice(infos, cfg.Device, camera.Facing(cfg.Facing))
	if err != nil {
		return nil, err
	}

	log.Info().Str("id", info.ID).Str("name", info.Name).Str("driver", cfg.Driver).Msg("[camera] device")

	session := camera.NewSession(drv, info, camera.Options{
		Buffers: cfg.Buffers,
		Reuse:   cfg.Reuse,
		Logger:  &log,
	})

	return &Module{
		cfg:     cfg,
		driver:  drv,
		session: session,
		log:     log,
		subs:    map[*ws.Transport]struct{}{},
	}, nil
}

func (m *Module) Session() *camera.Session {
	return m.session
}

// Target - preview surface from config
func (m *Module) Target() camera.Size {
	return camera.Size{Width: m.cfg.Width, Height: m.cfg.Height}
}

func (m *Module) Env(rotation int) camera.Env {
	return camera.Env{Rotation: camera.DisplayRotation(rotation), MaxArea: m.cfg.MaxArea}
}

// Autostart - open device, restore saved resolution and start preview
func (m *Module) Autostart() error {
	if err := m.open(); err != nil {
		return err
	}

	size, err := m.session.StartPreview(m.Target(), m.Env(m.cfg.Rotation))
	if err != nil {
		return err
	}

	m.log.Info().Stringer("size", size).Msg("[camera] autostart")
	m.notify()
	return nil
}

func (m *Module) open() error {
	if m.session.State() != camera.StateClosed {
		return nil
	}

	if err := m.session.Open(); err != nil {
		return err
	}

	m.mu.Lock()
	saved := m.cfg.Resolution
	m.mu.Unlock()

	if saved == "" {
		return nil
	}

	// saved resolution preferred on next negotiation
	size, err := camera.ParseSize(saved)
	if err == nil {
		err = m.session.SetResolution(size)
	}
	if err != nil {
		m.log.Warn().Err(err).Str("resolution", saved).Msg("[camera] saved resolution")
	}
	return nil
}

func (m *Module) Close() {
	_, _ = m.stopRecording()
	if err := m.session.Release(); err != nil {
		m.log.Warn().Err(err).Msg("[camera] release")
	}
}

func (m *Module) startRecording(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec != nil {
		return "", fmt.Errorf("%w: %s", errRecording, m.rec.path)
	}

	if path == "" {
		path = m.cfg.RecordDir
		if path != "" {
			path += "/"
		}
		path += "go2cam_" + strconv.FormatInt(time.Now().Unix(), 10) + ".y4m"
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	rec, err := m.session.StartRecording(f)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}

	m.rec = &recording{path: path, file: f, rec: rec, started: time.Now()}
	m.log.Info().Str("path", path).Msg("[camera] record start")
	return path, nil
}

type recordInfo struct {
	Path     string  `json:"path"`
	Frames   int     `json:"frames"`
	Bytes    int     `json:"bytes"`
	Duration float64 `json:"duration"`
}

func (m *Module) stopRecording() (*recordInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.rec
	if r == nil {
		return nil, nil
	}
	m.rec = nil

	// consumer detached before file is closed
	m.session.StopRecording()

	err := errors.Join(r.rec.Flush(), r.file.Close())

	info := &recordInfo{
		Path:     r.path,
		Frames:   r.rec.Frames,
		Bytes:    r.rec.Bytes,
		Duration: time.Since(r.started).Seconds(),
	}

	m.log.Info().Str("path", r.path).Int("frames", info.Frames).Err(err).Msg("[camera] record stop")
	return info, err
}

func (m *Module) recordInfo() *recordInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec == nil {
		return nil
	}
	return &recordInfo{
		Path:     m.rec.path,
		Duration: time.Since(m.rec.started).Seconds(),
	}
}

// LookupDevice - by id, name or index, first device with facing if empty
func LookupDevice(infos []camera.DeviceInfo, device string, facing camera.Facing) (camera.DeviceInfo, error) {
	if len(infos) == 0 {
		return camera.DeviceInfo{}, camera.ErrDeviceUnavailable
	}

	if device == "" {
		if info, ok := camera.FindDevice(infos, facing); ok {
			return info, nil
		}
		info, _ := camera.FindDevice(infos, "")
		return info, nil
	}

	for _, info := range infos {
		if info.ID == device || info.Name == device {
			return info, nil
		}
	}

	if i, err := strconv.Atoi(device); err == nil && i >= 0 && i < len(infos) {
		return infos[i], nil
	}

	return camera.DeviceInfo{}, errors.New("camera: device not found: " + device)
}

func newFakeDriver(cfg Config) (*fake.Driver, error) {
	drv := fake.NewDriver()

	if cfg.FPS > 0 {
		drv.Interval = time.Second / time.Duration(cfg.FPS)
	}

	if cfg.Source == "" {
		return drv, nil
	}

	f, err := os.Open(cfg.Source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, frames, err := y4m.ReadPacked(f, 300)
	if err != nil {
		return nil, err
	}

	drv.Sizes = []camera.Size{{Width: hdr.Width, Height: hdr.Height}}
	drv.Frames = frames
	return drv, nil
}
