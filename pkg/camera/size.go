package camera

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Size - capture or surface resolution in pixels
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (s Size) Area() int {
	return s.Width * s.Height
}

// Valid - both dimensions positive, zero Size means "absent"
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Rotate - swap width and height
func (s Size) Rotate() Size {
	return Size{Width: s.Height, Height: s.Width}
}

func (s Size) String() string {
	return strconv.Itoa(s.Width) + "x" + strconv.Itoa(s.Height)
}

func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Size) UnmarshalText(text []byte) (err error) {
	*s, err = ParseSize(string(text))
	return
}

// ParseSize support "1280x720" and "1280X720"
func ParseSize(s string) (Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Size{}, fmt.Errorf("camera: wrong size: %q", s)
	}

	var size Size
	var err error
	if size.Width, err = strconv.Atoi(w); err != nil {
		return Size{}, fmt.Errorf("camera: wrong width: %w", err)
	}
	if size.Height, err = strconv.Atoi(h); err != nil {
		return Size{}, fmt.Errorf("camera: wrong height: %w", err)
	}
	if !size.Valid() {
		return Size{}, errors.New("camera: size must be positive: " + s)
	}
	return size, nil
}

// Compare - order by area, returns -1, 0 or +1
func Compare(a, b Size) int {
	switch aa, ba := a.Area(), b.Area(); {
	case aa < ba:
		return -1
	case aa > ba:
		return 1
	}
	return 0
}

// Contains - exact width and height match
func Contains(sizes []Size, size Size) bool {
	for _, s := range sizes {
		if s == size {
			return true
		}
	}
	return false
}
