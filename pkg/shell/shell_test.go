package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceEnvVars(t *testing.T) {
	t.Setenv("GO2CAM_DEVICE", "/dev/video2")

	tests := []struct {
		src  string
		want string
	}{
		{"device: ${GO2CAM_DEVICE}", "device: /dev/video2"},
		{"device: ${GO2CAM_DEVICE:/dev/video0}", "device: /dev/video2"},
		{"width: ${GO2CAM_WIDTH:1280}", "width: 1280"},
		{"width: ${GO2CAM_WIDTH}", "width: ${GO2CAM_WIDTH}"},
		{"driver: ${GO2CAM_DRIVER:}", "driver: "},
		{"plain: text", "plain: text"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			require.Equal(t, tt.want, ReplaceEnvVars(tt.src))
		})
	}
}

func TestWaitSignalContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Nil(t, WaitSignal(ctx))
}
