package homeassistant

import (
	"encoding/json"
	"fmt"
)

const (
	discoveryPrefix = "homeassistant"
	topicPrefix     = "ilightsln"
)

// Availability payloads.
const (
	PayloadAvailable    = "online"
	PayloadNotAvailable = "offline"
)

// LightConfiguration represents a Home Assistant light, as used during light registration
type LightConfiguration struct {
	ConfigTopic string `json:"-"`

	Name                string `json:"name"`
	UniqueId            string `json:"unique_id"`
	CommandTopic        string `json:"command_topic"`
	StateTopic          string `json:"state_topic"`
	AvailabilityTopic   string `json:"availability_topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
	Schema              string `json:"schema"`
	Brightness          bool   `json:"brightness"`
	BrightnessScale     int    `json:"brightness_scale,omitempty"`
	WhiteValue          bool   `json:"white_value,omitempty"`
}

func NewLightConfiguration(name string, uniqueId string, brightness bool, whiteValue bool) *LightConfiguration {
	cfg := &LightConfiguration{
		ConfigTopic:         ConfigTopic(uniqueId),
		Name:                name,
		UniqueId:            uniqueId,
		CommandTopic:        CommandTopic(uniqueId),
		StateTopic:          StateTopic(uniqueId),
		AvailabilityTopic:   AvailabilityTopic(uniqueId),
		PayloadAvailable:    PayloadAvailable,
		PayloadNotAvailable: PayloadNotAvailable,
		Schema:              "json",
		Brightness:          brightness,
		WhiteValue:          whiteValue,
	}

	if brightness {
		cfg.BrightnessScale = MaxBrightness
	}

	return cfg
}

func (l *LightConfiguration) JSON() ([]byte, error) {
	return json.Marshal(l)
}

func ConfigTopic(uniqueId string) string {
	return fmt.Sprintf("%v/light/%v/config", discoveryPrefix, uniqueId)
}

func CommandTopic(uniqueId string) string {
	return fmt.Sprintf("%v/light/%v/set", topicPrefix, uniqueId)
}

func StateTopic(uniqueId string) string {
	return fmt.Sprintf("%v/light/%v/state", topicPrefix, uniqueId)
}

func AvailabilityTopic(uniqueId string) string {
	return fmt.Sprintf("%v/light/%v/availability", topicPrefix, uniqueId)
}
