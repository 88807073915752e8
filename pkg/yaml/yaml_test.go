package yaml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatch(t *testing.T) {
	b := []byte(`# prefix`)

	b, err := Patch(b, "resolution", "1280x720", "camera")
	require.Nil(t, err)

	require.Equal(t, `# prefix
camera:
  resolution: 1280x720
`, string(b))

	b, err = Patch(b, "sizes", []string{"640x480", "1280x720"}, "camera")
	require.Nil(t, err)

	require.Equal(t, `# prefix
camera:
  resolution: 1280x720
  sizes:
    - 640x480
    - 1280x720
`, string(b))

	b, err = Patch(b, "resolution", "1920x1080", "camera")
	require.Nil(t, err)

	require.Equal(t, `# prefix
camera:
  resolution: 1920x1080
  sizes:
    - 640x480
    - 1280x720
`, string(b))

	b, err = Patch(b, "sizes", "640x480", "camera")
	require.Nil(t, err)

	require.Equal(t, `# prefix
camera:
  resolution: 1920x1080
  sizes: 640x480
`, string(b))

	b, err = Patch(b, "resolution", nil, "camera")
	require.Nil(t, err)

	require.Equal(t, `# prefix
camera:
  sizes: 640x480
`, string(b))
}

func TestPatchNested(t *testing.T) {
	b := []byte(`log:
  level: info
camera:
  driver: v4l2
  device: /dev/video0
`)

	b, err := Patch(b, "camera", "debug", "log")
	require.Nil(t, err)

	require.Equal(t, `log:
  level: info
  camera: debug
camera:
  driver: v4l2
  device: /dev/video0
`, string(b))

	// value with the same name as key
	b, err = Patch(b, "v4l2", "x", "camera")
	require.Nil(t, err)
	require.Contains(t, string(b), "  v4l2: x\n")

	_, err = Patch(b, "width", 640, "camera", "missing")
	require.NotNil(t, err)

	// removing missing key is ok
	_, err = Patch(nil, "resolution", nil, "camera")
	require.Nil(t, err)
}

func TestMarshal(t *testing.T) {
	b, err := Marshal(map[string]any{"camera": map[string]int{"buffers": 4}})
	require.Nil(t, err)
	require.Equal(t, "camera:\n  buffers: 4\n", string(b))
}
