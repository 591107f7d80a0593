package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/victorjacobs/go-ilightsln/gateway"
	"github.com/victorjacobs/go-ilightsln/history"
	"github.com/victorjacobs/go-ilightsln/homeassistant"
	"github.com/victorjacobs/go-ilightsln/light"
	"github.com/victorjacobs/go-ilightsln/mqtt"
	"github.com/victorjacobs/go-ilightsln/restore"
)

// Broker is the MQTT connection to Home Assistant.
type Broker interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

type Options struct {
	DiscoveryTimeout time.Duration
	RefreshInterval  time.Duration
}

// Bridge plays the host platform for the light adapters: it registers them
// with Home Assistant, forwards commands and polls their state.
type Bridge struct {
	gateway  gateway.Gateway
	broker   Broker
	store    restore.Store
	recorder history.Recorder
	opts     Options

	adapters []*light.Adapter
	updates  chan *light.Adapter

	// Last published snapshot per light, used to publish only on changes to state
	mu        sync.Mutex
	published map[string]light.Snapshot
}

func New(gw gateway.Gateway, broker Broker, store restore.Store, recorder history.Recorder, opts Options) *Bridge {
	if recorder == nil {
		recorder = history.Nop{}
	}

	return &Bridge{
		gateway:   gw,
		broker:    broker,
		store:     store,
		recorder:  recorder,
		opts:      opts,
		published: make(map[string]light.Snapshot),
	}
}

// Setup discovers the gateway lights and creates one adapter per light. Lights
// whose names map to the same ID get a numeric suffix in discovery order.
func (b *Bridge) Setup(ctx context.Context) error {
	lights, err := DiscoverLights(ctx, b.gateway, b.opts.DiscoveryTimeout)
	if err != nil {
		return err
	}

	min, max := b.gateway.BrightnessRange()
	adapters := make([]*light.Adapter, 0, len(lights))
	taken := make(map[string]bool, len(lights))
	for _, l := range lights {
		adapter, err := light.New(l, min, max, b)
		if err != nil {
			return err
		}

		id := adapter.UniqueID()
		for n := 2; taken[id]; n++ {
			id = fmt.Sprintf("%v_%d", adapter.UniqueID(), n)
		}
		if id != adapter.UniqueID() {
			log.WithField("light", l.Name()).Warnf("Duplicate light ID, using %v", id)
			adapter.SetUniqueID(id)
		}
		taken[id] = true

		adapters = append(adapters, adapter)
	}

	b.adapters = adapters
	b.updates = make(chan *light.Adapter, 2*len(adapters))

	return nil
}

func (b *Bridge) Adapters() []*light.Adapter {
	return b.adapters
}

// RegisterLights attaches every adapter, publishes its Home Assistant
// configuration and subscribes to its command topic.
func (b *Bridge) RegisterLights(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range b.adapters {
		adapter := adapter
		g.Go(func() error {
			return b.attach(gctx, adapter)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, adapter := range b.adapters {
		features := adapter.SupportedFeatures()
		cfg := homeassistant.NewLightConfiguration(
			adapter.Name(),
			adapter.UniqueID(),
			features.Has(light.SupportBrightness),
			features.Has(light.SupportWhiteValue),
		)

		if configJSON, err := cfg.JSON(); err != nil {
			return fmt.Errorf("error marshalling light configuration: %w", err)
		} else if err := b.broker.Publish(cfg.ConfigTopic, true, configJSON); err != nil {
			return err
		}

		if err := b.broker.Subscribe(cfg.CommandTopic, b.handleCommand(ctx, adapter)); err != nil {
			return err
		}

		log.Printf("Registered %v with Homeassistant", adapter.Name())
	}

	return nil
}

func (b *Bridge) attach(ctx context.Context, adapter *light.Adapter) error {
	var restorer light.Restorer
	if b.store != nil {
		restorer = b.store
	}

	err := adapter.Attach(ctx, restorer)
	if err == nil || ctx.Err() != nil {
		return err
	}

	// Losing the restored state is not worth losing the light
	log.WithField("light", adapter.Name()).Warnf("Restoring state failed, using gateway state: %v", err)
	return adapter.Attach(ctx, nil)
}

func (b *Bridge) handleCommand(ctx context.Context, adapter *light.Adapter) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		cmd, err := homeassistant.ParseLightState(payload)
		if err != nil {
			return err
		}

		command := light.Command{Brightness: cmd.Brightness}
		if cmd.IsOn() {
			log.Printf("Turning on %v", adapter.Name())
			return adapter.TurnOn(ctx, command)
		}

		log.Printf("Turning off %v", adapter.Name())
		return adapter.TurnOff(ctx, command)
	}
}

// ScheduleUpdate queues a forced state publish for the adapter. When the queue
// is full the next poll picks the change up.
func (b *Bridge) ScheduleUpdate(adapter *light.Adapter) {
	select {
	case b.updates <- adapter:
	default:
	}
}

// PublishLightState polls every adapter and publishes the state of those that
// changed since the last publish.
func (b *Bridge) PublishLightState() error {
	for _, adapter := range b.adapters {
		if err := b.publish(adapter, false); err != nil {
			return err
		}
	}

	return nil
}

func (b *Bridge) publish(adapter *light.Adapter, force bool) error {
	snapshot := adapter.Poll()
	id := adapter.UniqueID()

	b.mu.Lock()
	defer b.mu.Unlock()

	previous, seen := b.published[id]
	stateChanged := force || !seen || previous.On != snapshot.On || previous.NativeBrightness != snapshot.NativeBrightness
	availabilityChanged := !seen || previous.Available != snapshot.Available

	if !stateChanged && !availabilityChanged {
		return nil
	}

	if stateChanged {
		log.Debugf("%v changed state", snapshot.Name)
		stateTopic := homeassistant.StateTopic(id)
		state := homeassistant.NewLightState(snapshot.On, snapshot.Brightness).WithNativeBrightness(snapshot.NativeBrightness)
		if stateJSON, err := state.JSON(); err != nil {
			return fmt.Errorf("[%v] Error marshalling light state: %w", stateTopic, err)
		} else if err := b.broker.Publish(stateTopic, true, stateJSON); err != nil {
			return err
		}
	}

	if availabilityChanged {
		if err := b.publishAvailability(id, snapshot.Available); err != nil {
			return err
		}
	}

	b.published[id] = snapshot
	b.recorder.Record(id, snapshot, time.Now())

	if b.store != nil {
		// The native value is what gets restored, the host value only rounds down
		brightness, native := snapshot.Brightness, snapshot.NativeBrightness
		state := light.RestoredState{
			On:               snapshot.On,
			Available:        snapshot.Available,
			Brightness:       &brightness,
			NativeBrightness: &native,
		}
		if err := b.store.Save(context.Background(), id, state); err != nil {
			log.WithField("light", snapshot.Name).Warnf("Saving state failed: %v", err)
		}
	}

	return nil
}

func (b *Bridge) publishAvailability(id string, available bool) error {
	payload := homeassistant.PayloadNotAvailable
	if available {
		payload = homeassistant.PayloadAvailable
	}

	return b.broker.Publish(homeassistant.AvailabilityTopic(id), true, []byte(payload))
}

// Run polls the adapters every refresh interval and publishes requested
// updates until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(b.opts.RefreshInterval)
	defer ticker.Stop()

	b.safely(b.PublishLightState)

	for {
		select {
		case <-ctx.Done():
			return
		case adapter := <-b.updates:
			b.safely(func() error { return b.publish(adapter, true) })
		case <-ticker.C:
			b.safely(b.PublishLightState)
		}
	}
}

func (b *Bridge) safely(f func() error) {
	defer func() {
		if v := recover(); v != nil {
			log.Errorf("Panic: %v, continuing", v)
		}
	}()

	if err := f(); err != nil {
		log.Errorf("Publishing light state failed: %v", err)
	}
}

// Close detaches the adapters, marks them offline and closes the gateway.
func (b *Bridge) Close() error {
	for _, adapter := range b.adapters {
		adapter.Detach()
		if err := b.broker.Unsubscribe(homeassistant.CommandTopic(adapter.UniqueID())); err != nil {
			log.WithField("light", adapter.Name()).Warnf("Unsubscribing from commands failed: %v", err)
		}
		if err := b.publishAvailability(adapter.UniqueID(), false); err != nil {
			log.WithField("light", adapter.Name()).Warnf("Marking light offline failed: %v", err)
		}
	}

	return b.gateway.Close()
}

var _ light.Refresher = &Bridge{}
