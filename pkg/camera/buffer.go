package camera

type BufferState byte

const (
	BufferFree BufferState = iota
	BufferLoaned
	BufferPending
	BufferDiscarded
)

func (s BufferState) String() string {
	switch s {
	case BufferFree:
		return "free"
	case BufferLoaned:
		return "loaned"
	case BufferPending:
		return "pending"
	case BufferDiscarded:
		return "discarded"
	}
	return "unknown"
}

// Buffer - frame memory owned by BufferPool and loaned to device or consumer
type Buffer struct {
	Data []byte
	Used int // bytes filled by device
	Size Size

	pool  *BufferPool
	gen   uint32
	state BufferState
}

// NewBuffer - buffer allocated by device itself, outside any pool
func NewBuffer(data []byte, size Size) *Buffer {
	return &Buffer{Data: data, Used: len(data), Size: size, state: BufferPending}
}

// Bytes - filled part of the buffer
func (b *Buffer) Bytes() []byte {
	if b.Used <= 0 || b.Used > len(b.Data) {
		return b.Data
	}
	return b.Data[:b.Used]
}

func (b *Buffer) State() BufferState {
	if b.pool == nil {
		return b.state
	}
	b.pool.mu.Lock()
	defer b.pool.mu.Unlock()
	return b.state
}

// Release - consumer is done with the buffer, safe to call for unpooled buffers
func (b *Buffer) Release() bool {
	if b.pool == nil {
		return false
	}
	return b.pool.OnConsumerReleased(b)
}
