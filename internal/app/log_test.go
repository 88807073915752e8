package app

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer(t *testing.T) {
	buf := newBuffer(2)

	_, err := buf.Write([]byte("hello"))
	require.Nil(t, err)
	_, err = buf.Write([]byte("world"))
	require.Nil(t, err)

	require.Equal(t, "helloworld", string(buf.Bytes()))

	var sb strings.Builder
	n, err := buf.WriteTo(&sb)
	require.Nil(t, err)
	require.Equal(t, int64(10), n)

	buf.Reset()
	require.Empty(t, buf.Bytes())
}

func TestCircularBufferOverflow(t *testing.T) {
	buf := newBuffer(2)

	chunk := strings.Repeat("a", chunkSize)
	_, _ = buf.Write([]byte(chunk))
	_, _ = buf.Write([]byte(strings.Repeat("b", chunkSize)))
	_, _ = buf.Write([]byte("c"))

	// oldest chunk dropped
	b := buf.Bytes()
	require.Len(t, b, chunkSize+1)
	require.Equal(t, byte('b'), b[0])
	require.Equal(t, byte('c'), b[len(b)-1])
}

func TestCircularBufferBytes(t *testing.T) {
	tests := []struct {
		name     string
		buffer   *circularBuffer
		expected []byte
	}{
		{
			name:     "empty buffer",
			buffer:   &circularBuffer{chunks: make([][]byte, 5)},
			expected: []byte{},
		},
		{
			name: "partially filled buffer",
			buffer: &circularBuffer{
				chunks: [][]byte{{'a', 'b'}, {'c', 'd'}, {}, {}, {}},
				w:      2,
			},
			expected: []byte{'a', 'b', 'c', 'd'},
		},
		{
			name: "wrapped around buffer",
			buffer: &circularBuffer{
				chunks: [][]byte{{'e', 'f'}, {'g', 'h'}, {'a', 'b'}, {'c', 'd'}, {}},
				r:      2,
				w:      1,
			},
			expected: []byte{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h'},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.buffer.Bytes())
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		format string
		level  string
		want   zerolog.Level
	}{
		{"json", "info", zerolog.InfoLevel},
		{"text", "debug", zerolog.DebugLevel},
		{"", "", zerolog.InfoLevel},
		{"", "wrong", zerolog.InfoLevel},
	}

	for _, tc := range tests {
		logger := NewLogger(map[string]string{"format": tc.format, "level": tc.level})
		require.Equal(t, tc.want, logger.GetLevel(), tc.level)
	}
}

func TestMemoryOnlyLogger(t *testing.T) {
	MemoryLog.Reset()
	t.Cleanup(MemoryLog.Reset)

	logger := NewLogger(map[string]string{"level": "debug"})
	logger.Debug().Msg("[camera] preview")

	require.Contains(t, string(MemoryLog.Bytes()), `"message":"[camera] preview"`)
}

func TestGetLogger(t *testing.T) {
	prev := modules
	t.Cleanup(func() { modules = prev })

	modules = map[string]string{
		"camera": "debug",
		"api":    "warn",
	}

	require.Equal(t, zerolog.DebugLevel, GetLogger("camera").GetLevel())
	require.Equal(t, zerolog.WarnLevel, GetLogger("api").GetLevel())
	require.Equal(t, Logger.GetLevel(), GetLogger("nonexistent").GetLevel())
}
