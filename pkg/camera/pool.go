package camera

import (
	"errors"
	"sync"
)

const DefaultBuffers = 4

// LoanFunc - hand buffer to device for filling, must not block or call back into pool
type LoanFunc func(buf *Buffer) error

// BufferPool support:
// - lazy allocation of up to capacity buffers
// - loans to device only with reuse enabled
// - recycle released buffers back to device only while recording
// - drop buffers of previous configuration (generation) and after teardown
type BufferPool struct {
	capacity int
	reuse    bool

	mu        sync.Mutex
	size      Size
	frameLen  int
	gen       uint32
	loan      LoanFunc
	recording bool

	free  []*Buffer
	spare [][]byte // memory of discarded buffers, same generation
	out   map[*Buffer]struct{}

	loaned  int
	pending int

	allocated uint64
	recycled  uint64
	discarded uint64
}

func NewBufferPool(capacity int, reuse bool) *BufferPool {
	if capacity <= 0 {
		capacity = DefaultBuffers
	}
	return &BufferPool{
		capacity: capacity,
		reuse:    reuse,
		out:      map[*Buffer]struct{}{},
	}
}

func (p *BufferPool) Capacity() int {
	return p.capacity
}

func (p *BufferPool) Reuse() bool {
	return p.reuse
}

// Configure - set frame size, buffers of previous size become stale
func (p *BufferPool) Configure(size Size, bytesPerPixel int) error {
	if !size.Valid() || bytesPerPixel <= 0 {
		return errors.New("camera: wrong buffer size " + size.String())
	}

	frameLen := size.Area() * bytesPerPixel

	p.mu.Lock()
	defer p.mu.Unlock()

	if size == p.size && frameLen == p.frameLen {
		return nil
	}

	p.gen++
	p.discardOutstanding()
	p.free = nil
	p.spare = nil
	p.size = size
	p.frameLen = frameLen
	return nil
}

// Attach - device handle present, loans allowed
func (p *BufferPool) Attach(loan LoanFunc) {
	p.mu.Lock()
	p.loan = loan
	p.mu.Unlock()
}

// Seed - loan buffers to device until all capacity in flight
func (p *BufferPool) Seed() (n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.reuse || p.loan == nil || p.frameLen == 0 {
		return 0, nil
	}

	for p.loaned+p.pending < p.capacity {
		buf := p.get()
		buf.state = BufferLoaned
		p.out[buf] = struct{}{}
		p.loaned++

		if err = p.loan(buf); err != nil {
			buf.state = BufferFree
			delete(p.out, buf)
			p.loaned--
			p.free = append(p.free, buf)
			return
		}

		n++
	}

	return
}

// OnDeviceFilled - device returned filled buffer, false means drop it
func (p *BufferPool) OnDeviceFilled(buf *Buffer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.valid(buf, BufferLoaned) {
		return false
	}

	buf.state = BufferPending
	p.loaned--
	p.pending++
	return true
}

// OnConsumerReleased - consumer done with buffer, recycle or discard it
func (p *BufferPool) OnConsumerReleased(buf *Buffer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.valid(buf, BufferPending) {
		return false
	}

	p.pending--

	if p.reuse && p.recording {
		buf.state = BufferLoaned
		buf.Used = 0
		p.loaned++

		if err := p.loan(buf); err == nil {
			p.recycled++
			return true
		}

		p.loaned--
	}

	buf.state = BufferDiscarded
	delete(p.out, buf)
	p.spare = append(p.spare, buf.Data)
	p.discarded++
	return true
}

func (p *BufferPool) SetRecording(active bool) {
	p.mu.Lock()
	p.recording = active
	p.mu.Unlock()
}

func (p *BufferPool) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

// Teardown - device handle absent, all buffers in flight become stale
func (p *BufferPool) Teardown() {
	p.mu.Lock()
	p.loan = nil
	p.discardOutstanding()
	p.mu.Unlock()
}

type PoolStats struct {
	Size      Size   `json:"size"`
	FrameLen  int    `json:"frame_len"`
	Capacity  int    `json:"capacity"`
	Reuse     bool   `json:"reuse"`
	Recording bool   `json:"recording"`
	Attached  bool   `json:"attached"`
	Free      int    `json:"free"`
	Loaned    int    `json:"loaned"`
	Pending   int    `json:"pending"`
	Allocated uint64 `json:"allocated"`
	Recycled  uint64 `json:"recycled"`
	Discarded uint64 `json:"discarded"`
}

func (p *BufferPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Size:      p.size,
		FrameLen:  p.frameLen,
		Capacity:  p.capacity,
		Reuse:     p.reuse,
		Recording: p.recording,
		Attached:  p.loan != nil,
		Free:      len(p.free),
		Loaned:    p.loaned,
		Pending:   p.pending,
		Allocated: p.allocated,
		Recycled:  p.recycled,
		Discarded: p.discarded,
	}
}

func (p *BufferPool) valid(buf *Buffer, state BufferState) bool {
	return p.loan != nil && buf != nil && buf.pool == p && buf.gen == p.gen && buf.state == state
}

func (p *BufferPool) get() *Buffer {
	if i := len(p.free) - 1; i >= 0 {
		buf := p.free[i]
		p.free = p.free[:i]
		return buf
	}

	var data []byte
	if i := len(p.spare) - 1; i >= 0 {
		data = p.spare[i]
		p.spare = p.spare[:i]
	} else {
		data = make([]byte, p.frameLen)
		p.allocated++
	}

	return &Buffer{Data: data, Size: p.size, pool: p, gen: p.gen}
}

func (p *BufferPool) discardOutstanding() {
	for buf := range p.out {
		buf.state = BufferDiscarded
		p.discarded++
	}
	clear(p.out)
	p.loaned = 0
	p.pending = 0
}
