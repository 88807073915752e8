package camera

// DisplayRotation - normalize surface rotation to 0, 90, 180 or 270 degrees,
// accept both degrees and rotation index (0-3)
func DisplayRotation(rotation int) int {
	switch rotation {
	case 1, 90:
		return 90
	case 2, 180:
		return 180
	case 3, 270:
		return 270
	}
	return 0
}

// DisplayOrientation - clockwise rotation for preview frames on display rotated by degrees
func DisplayOrientation(info DeviceInfo, degrees int) int {
	if info.Facing == FacingFront {
		i := (info.Orientation + degrees) % 360
		return (360 - i) % 360 // compensate the mirror
	}
	return (info.Orientation - degrees + 360) % 360
}
