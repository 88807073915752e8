package camera

import "sync"

// MaxCaptureErrors - consecutive capture failures before device loop gives up
const MaxCaptureErrors = 10

// CaptureReporter - optional Device extension, failures of capture loop
// since last StartPreview and the error that stopped it
type CaptureReporter interface {
	CaptureErrors() (count uint64, stopped error)
}

// CaptureHealth - failure counters for device capture loops
type CaptureHealth struct {
	mu      sync.Mutex
	total   uint64
	streak  int
	stopped error
}

// Fail - count failure, true when loop must stop
func (h *CaptureHealth) Fail(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.total++
	h.streak++
	if h.streak >= MaxCaptureErrors && h.stopped == nil {
		h.stopped = err
	}
	return h.stopped != nil
}

// Stop - count unrecoverable failure
func (h *CaptureHealth) Stop(err error) {
	h.mu.Lock()
	h.total++
	if h.stopped == nil {
		h.stopped = err
	}
	h.mu.Unlock()
}

// OK - frame delivered, failure streak is over
func (h *CaptureHealth) OK() {
	h.mu.Lock()
	h.streak = 0
	h.mu.Unlock()
}

func (h *CaptureHealth) Reset() {
	h.mu.Lock()
	h.total = 0
	h.streak = 0
	h.stopped = nil
	h.mu.Unlock()
}

func (h *CaptureHealth) CaptureErrors() (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total, h.stopped
}
