package light

import (
	"errors"
	"fmt"
)

// Brightness range used by Home Assistant.
const (
	HostMinBrightness = 0
	HostMaxBrightness = 255
)

var ErrDegenerateRange = errors.New("degenerate range")

// DegenerateRangeError is returned when a source range has equal bounds.
type DegenerateRangeError struct {
	Min, Max int
}

func (e *DegenerateRangeError) Error() string {
	return fmt.Sprintf("degenerate range [%v, %v]: bounds must differ", e.Min, e.Max)
}

func (e *DegenerateRangeError) Is(target error) bool {
	return target == ErrDegenerateRange
}

// MapInt maps value from the linear range [minVal, maxVal] to
// [minValNew, maxValNew]. Values outside the source range are extrapolated.
// The result is truncated toward zero.
func MapInt(value, minVal, maxVal, minValNew, maxValNew int) (int, error) {
	if minVal == maxVal {
		return 0, &DegenerateRangeError{Min: minVal, Max: maxVal}
	}

	return int(float64(value-minVal)/float64(maxVal-minVal)*float64(maxValNew-minValNew) + float64(minValNew)), nil
}

// ClampHost limits a brightness to the host range.
func ClampHost(brightness int) int {
	return max(HostMinBrightness, min(HostMaxBrightness, brightness))
}

// Scale converts brightness between the host range and a gateway's native range.
type Scale struct {
	nativeMin, nativeMax int
}

func NewScale(nativeMin, nativeMax int) (Scale, error) {
	if nativeMin == nativeMax {
		return Scale{}, &DegenerateRangeError{Min: nativeMin, Max: nativeMax}
	}

	return Scale{nativeMin: nativeMin, nativeMax: nativeMax}, nil
}

// ToNative converts a host brightness (0..255) to the gateway range.
func (s Scale) ToNative(brightness int) int {
	v, _ := MapInt(brightness, HostMinBrightness, HostMaxBrightness, s.nativeMin, s.nativeMax)
	return v
}

// ToHost converts a gateway brightness to the host range (0..255).
func (s Scale) ToHost(brightness int) int {
	v, _ := MapInt(brightness, s.nativeMin, s.nativeMax, HostMinBrightness, HostMaxBrightness)
	return v
}

// ClampNative limits a gateway brightness to the native range.
func (s Scale) ClampNative(brightness int) int {
	lo, hi := min(s.nativeMin, s.nativeMax), max(s.nativeMin, s.nativeMax)
	return max(lo, min(hi, brightness))
}

func (s Scale) NativeRange() (int, int) {
	return s.nativeMin, s.nativeMax
}
