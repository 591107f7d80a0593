package homeassistant

import (
	"encoding/json"
	"fmt"
)

const (
	StateOn  = "ON"
	StateOff = "OFF"

	// MaxBrightness is the brightness_scale advertised in discovery.
	MaxBrightness = 255
)

// LightState represents light state on Home Assistant. Either as current state in
// the state update topic, or requested state in command topic.
type LightState struct {
	State      string `json:"state"`
	Brightness *int   `json:"brightness,omitempty"`

	// NativeBrightness is the gateway's own value, kept in the retained state
	// so a restart restores it without a lossy round trip. Home Assistant
	// ignores it.
	NativeBrightness *int `json:"native_brightness,omitempty"`
}

func NewLightState(on bool, brightness int) *LightState {
	state := &LightState{
		State:      StateOff,
		Brightness: &brightness,
	}
	if on {
		state.State = StateOn
	}

	return state
}

// WithNativeBrightness records the gateway's own brightness value.
func (s *LightState) WithNativeBrightness(native int) *LightState {
	s.NativeBrightness = &native
	return s
}

// ParseLightState decodes a JSON schema payload, rejecting unknown states and
// brightness outside 0..255.
func ParseLightState(payload []byte) (*LightState, error) {
	state := &LightState{}
	if err := json.Unmarshal(payload, state); err != nil {
		return nil, fmt.Errorf("decoding light state: %w", err)
	}

	if state.State != StateOn && state.State != StateOff {
		return nil, fmt.Errorf("decoding light state: unexpected state %q", state.State)
	}

	if state.Brightness != nil && (*state.Brightness < 0 || *state.Brightness > MaxBrightness) {
		return nil, fmt.Errorf("decoding light state: brightness %v outside [0, %v]", *state.Brightness, MaxBrightness)
	}

	return state, nil
}

func (s *LightState) IsOn() bool {
	return s.State == StateOn
}

func (s *LightState) JSON() ([]byte, error) {
	return json.Marshal(s)
}
