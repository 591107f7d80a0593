package restore

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/victorjacobs/go-ilightsln/homeassistant"
	"github.com/victorjacobs/go-ilightsln/light"
	"github.com/victorjacobs/go-ilightsln/mqtt"
)

// DefaultRetainedWindow is how long to wait for the broker to deliver a
// retained state message after subscribing.
const DefaultRetainedWindow = 500 * time.Millisecond

// Subscriber is the part of the MQTT client the retained store needs.
type Subscriber interface {
	Subscribe(topic string, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// RetainedStore restores state from the retained message on each light's
// state topic. Published state is retained, so Save has nothing to do.
type RetainedStore struct {
	subscriber Subscriber
	window     time.Duration
}

func NewRetainedStore(subscriber Subscriber, window time.Duration) *RetainedStore {
	return &RetainedStore{subscriber: subscriber, window: window}
}

func (s *RetainedStore) LastState(ctx context.Context, uniqueID string) (light.RestoredState, bool, error) {
	topic := homeassistant.StateTopic(uniqueID)
	received := make(chan *homeassistant.LightState, 1)

	err := s.subscriber.Subscribe(topic, func(_ string, payload []byte) error {
		state, err := homeassistant.ParseLightState(payload)
		if err != nil {
			return err
		}

		select {
		case received <- state:
		default:
		}
		return nil
	})
	if err != nil {
		return light.RestoredState{}, false, err
	}
	defer func() {
		if err := s.subscriber.Unsubscribe(topic); err != nil {
			log.WithField("topic", topic).Warnf("Unsubscribing from retained state failed: %v", err)
		}
	}()

	timer := time.NewTimer(s.window)
	defer timer.Stop()

	select {
	case state := <-received:
		return light.RestoredState{
			On:               state.IsOn(),
			Available:        true,
			Brightness:       state.Brightness,
			NativeBrightness: state.NativeBrightness,
		}, true, nil
	case <-timer.C:
		return light.RestoredState{}, false, nil
	case <-ctx.Done():
		return light.RestoredState{}, false, ctx.Err()
	}
}

func (s *RetainedStore) Save(context.Context, string, light.RestoredState) error {
	return nil
}

func (s *RetainedStore) Close() error {
	return nil
}

var _ Store = &RetainedStore{}
