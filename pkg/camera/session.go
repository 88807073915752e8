package camera

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/AlexxIT/go2cam/pkg/y4m"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StatePreview
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StatePreview:
		return "preview"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Options struct {
	// Buffers - pool capacity, DefaultBuffers if zero
	Buffers int
	// Reuse - loan pooled buffers to device instead of per-frame allocation
	Reuse  bool
	Logger *zerolog.Logger
}

// Sink - recording destination for frame bytes
type Sink interface {
	WriteFrame(b []byte) error
}

// Session - capture device wrapper:
// Closed -> Opening -> Open -> Preview (+recording) -> Open -> Closed
type Session struct {
	ID string

	driver Driver
	info   DeviceInfo
	pool   *BufferPool
	log    zerolog.Logger

	mu        sync.Mutex
	dev       Device
	sizes     []Size
	selected  Size
	recording bool
	sink      *guardedSink

	state    atomic.Int32
	consumer atomic.Pointer[FrameFunc]
	frames   atomic.Uint64
	dropped  atomic.Uint64
}

func NewSession(driver Driver, info DeviceInfo, opts Options) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		driver: driver,
		info:   info,
		pool:   NewBufferPool(opts.Buffers, opts.Reuse),
	}

	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("device", info.ID).Logger()
	} else {
		s.log = zerolog.Nop()
	}

	return s
}

func (s *Session) Info() DeviceInfo {
	return s.info
}

func (s *Session) Pool() *BufferPool {
	return s.pool
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Open - acquire device, slow call, no-op for already opened session
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		return nil
	}

	s.setState(StateOpening)

	s.log.Debug().Msg("[camera] open")

	dev, err := s.driver.Open(s.info.ID)
	if err != nil {
		s.setState(StateClosed)
		return fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, s.info.ID, err)
	}

	sizes, err := dev.Sizes()
	if err != nil {
		_ = dev.Close()
		s.setState(StateClosed)
		return fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, s.info.ID, err)
	}

	s.dev = dev
	s.sizes = sizes
	s.setState(StateOpen)

	s.log.Info().Int("sizes", len(sizes)).Msg("[camera] opened")
	return nil
}

// AvailableResolutions - device candidates as is, nil before open
func (s *Session) AvailableResolutions() []Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sizes)
}

// Resolution - last negotiated or user selected resolution
func (s *Session) Resolution() Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Session) SelectResolution(previous, target Size, env Env) (Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev == nil {
		return Size{}, s.invalid("select resolution")
	}

	return s.selectResolution(previous, target, env)
}

// StartPreview - negotiate resolution for target surface and start capture,
// on failure device released and session closed
func (s *Session) StartPreview(target Size, env Env) (Size, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateOpen {
		return Size{}, s.invalid("start preview")
	}

	size, err := s.selectResolution(s.selected, target, env)
	if err == nil {
		err = s.start(size)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("[camera] start preview")
		_ = s.release()
		return Size{}, err
	}

	return size, nil
}

// SetResolution - user choice from AvailableResolutions, applied immediately
// during preview and preferred on next negotiation.
// Size change during preview detaches recording sink, its stream has fixed frame size
func (s *Session) SetResolution(size Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev == nil {
		return s.invalid("set resolution")
	}

	if !Contains(s.sizes, size) {
		return fmt.Errorf("camera: unsupported resolution: %s", size)
	}

	if s.State() != StatePreview {
		s.selected = size
		return nil
	}

	if size == s.selected {
		return nil
	}

	if s.sink != nil {
		s.log.Info().Stringer("size", size).Msg("[camera] recording stopped by resolution change")
		s.record(nil)
	}

	recording := s.recording

	if err := s.stop(); err != nil {
		s.log.Debug().Err(err).Msg("[camera] stop preview")
	}

	if err := s.start(size); err != nil {
		_ = s.release()
		return err
	}

	s.setRecording(recording)
	return nil
}

// SetRecording - switch buffer recycling, valid only during preview
func (s *Session) SetRecording(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StatePreview {
		return s.invalid("set recording")
	}

	s.setRecording(active)
	return nil
}

// Record - deliver frames to sink with recording enabled, nil sink stops it
func (s *Session) Record(sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StatePreview {
		return s.invalid("record")
	}

	s.record(sink)
	return nil
}

// StartRecording - write raw YUV4MPEG2 stream of current resolution to w
func (s *Session) StartRecording(w io.Writer) (*y4m.Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StatePreview {
		return nil, s.invalid("start recording")
	}

	rec, err := y4m.NewRecorder(w, s.selected.Width, s.selected.Height)
	if err != nil {
		return nil, err
	}

	s.record(rec)
	return rec, nil
}

// StopRecording - detach recording consumer, safe to call in any state
func (s *Session) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		s.record(nil)
	}
}

func (s *Session) record(sink Sink) {
	// no writes to previous sink after return
	if s.sink != nil {
		s.sink.detach()
		s.sink = nil
	}

	if sink == nil {
		s.setRecording(false)
		s.OnFrame(nil)
		return
	}

	g := &guardedSink{sink: sink}
	s.sink = g

	s.OnFrame(func(buf *Buffer) {
		if err := g.write(buf.Bytes()); err != nil {
			s.log.Debug().Err(err).Msg("[camera] write frame")
		}
		buf.Release()
	})
	s.setRecording(true)
}

type guardedSink struct {
	mu   sync.Mutex
	sink Sink
}

func (g *guardedSink) write(b []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sink == nil {
		return nil
	}
	return g.sink.WriteFrame(b)
}

func (s *Session) detachSink() {
	if s.sink != nil {
		s.sink.detach()
		s.sink = nil
		s.OnFrame(nil)
	}
}

func (g *guardedSink) detach() {
	g.mu.Lock()
	g.sink = nil
	g.mu.Unlock()
}

func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *Session) StopPreview() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StatePreview {
		return s.invalid("stop preview")
	}

	s.detachSink()
	return s.stop()
}

// Release - close device from any state, safe to call many times
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release()
}

// OnFrame - set consumer for filled buffers, without consumer buffers released at once
func (s *Session) OnFrame(f FrameFunc) {
	if f == nil {
		s.consumer.Store(nil)
	} else {
		s.consumer.Store(&f)
	}
}

// ReleaseBuffer - hook for external consumers
func (s *Session) ReleaseBuffer(buf *Buffer) bool {
	return buf.Release()
}

type Stats struct {
	ID         string     `json:"id"`
	Device     DeviceInfo `json:"device"`
	State      State      `json:"state"`
	Resolution Size       `json:"resolution"`
	Sizes      []Size     `json:"sizes,omitempty"`
	Recording  bool       `json:"recording"`
	Frames     uint64     `json:"frames"`
	Dropped    uint64     `json:"dropped"`
	Pool       PoolStats  `json:"pool"`

	// CaptureErrors - device capture loop failures, Stalled - error that stopped it
	CaptureErrors uint64 `json:"capture_errors"`
	Stalled       string `json:"stalled,omitempty"`
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		ID:         s.ID,
		Device:     s.info,
		State:      s.State(),
		Resolution: s.selected,
		Sizes:      slices.Clone(s.sizes),
		Recording:  s.recording,
		Frames:     s.frames.Load(),
		Dropped:    s.dropped.Load(),
		Pool:       s.pool.Stats(),
	}

	if r, ok := s.dev.(CaptureReporter); ok {
		var err error
		if st.CaptureErrors, err = r.CaptureErrors(); err != nil {
			st.Stalled = err.Error()
		}
	}

	return st
}

func (s *Session) selectResolution(previous, target Size, env Env) (Size, error) {
	if !target.Valid() {
		return Size{}, fmt.Errorf("camera: wrong target size: %s", target)
	}

	size, ok := Select(previous, s.sizes, target, env)
	if !ok {
		return Size{}, ErrNoCandidates
	}

	return size, nil
}

func (s *Session) start(size Size) error {
	if err := s.dev.SetSize(size); err != nil {
		return err
	}

	if err := s.pool.Configure(size, s.dev.BytesPerPixel()); err != nil {
		return err
	}

	s.pool.Attach(s.dev.Loan)
	s.pool.SetRecording(false)
	s.recording = false

	s.dev.SetFrameCallback(s.handleFrame, s.pool.Reuse())

	if n, err := s.pool.Seed(); err != nil {
		s.log.Warn().Err(err).Int("loaned", n).Msg("[camera] seed buffers")
	}

	if err := s.dev.StartPreview(); err != nil {
		s.dev.SetFrameCallback(nil, false)
		s.pool.Teardown()
		return err
	}

	s.selected = size
	s.setState(StatePreview)

	s.log.Info().Stringer("size", size).Bool("reuse", s.pool.Reuse()).Msg("[camera] preview")
	return nil
}

func (s *Session) stop() error {
	s.dev.SetFrameCallback(nil, false)
	err := s.dev.StopPreview()
	s.pool.Teardown()
	s.pool.SetRecording(false)
	s.recording = false
	s.setState(StateOpen)

	s.log.Debug().Msg("[camera] preview stopped")
	return err
}

func (s *Session) setRecording(active bool) {
	if s.recording == active {
		return
	}

	s.recording = active
	s.pool.SetRecording(active)

	if active {
		// re-register callback and refill device queue
		s.dev.SetFrameCallback(s.handleFrame, s.pool.Reuse())
		if n, err := s.pool.Seed(); err != nil {
			s.log.Warn().Err(err).Int("loaned", n).Msg("[camera] seed buffers")
		}
	}

	s.log.Debug().Bool("active", active).Msg("[camera] recording")
}

func (s *Session) release() error {
	if s.dev == nil {
		s.setState(StateClosed)
		return nil
	}

	s.pool.Teardown()
	s.pool.SetRecording(false)
	s.dev.SetFrameCallback(nil, false)

	var errs []error
	if s.State() == StatePreview {
		errs = append(errs, s.dev.StopPreview())
	}
	errs = append(errs, s.dev.Close())

	s.detachSink()

	s.dev = nil
	s.sizes = nil
	s.recording = false
	s.setState(StateClosed)

	s.log.Info().Msg("[camera] released")
	return errors.Join(errs...)
}

func (s *Session) handleFrame(buf *Buffer) {
	if buf.pool != nil && !s.pool.OnDeviceFilled(buf) {
		s.dropped.Add(1)
		s.log.Trace().Err(ErrStaleBuffer).Msg("[camera] drop frame")
		return
	}

	s.frames.Add(1)

	if f := s.consumer.Load(); f != nil {
		(*f)(buf)
	} else {
		buf.Release()
	}
}

func (s *Session) invalid(op string) error {
	err := fmt.Errorf("%w: %s in %s state", ErrInvalidState, op, s.State())
	s.log.Error().Err(err).Caller(2).Send()
	return err
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}
