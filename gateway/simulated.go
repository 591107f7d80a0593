package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SimulatedDriver is the driver name of the in-memory gateway.
const SimulatedDriver = "simulated"

// Native brightness range of the simulated gateway.
const (
	SimulatedMinBrightness = 0
	SimulatedMaxBrightness = 100
)

var ErrNotConnected = errors.New("gateway not connected")

func init() {
	Register(SimulatedDriver, func(host string, port int) (Gateway, error) {
		return NewSimulated(host, port, "Living room", "Kitchen", "Hallway"), nil
	})
}

// Simulated is an in-memory gateway. It behaves like a real gateway client
// from the adapter's point of view: discovery completes asynchronously and
// commands fail while disconnected.
type Simulated struct {
	Host string
	Port int

	// DiscoveryDelay is how long discovery takes before LightsInitialized fires.
	DiscoveryDelay time.Duration
	// NeverInitialize keeps LightsInitialized from ever firing.
	NeverInitialize bool
	// CommandError, when set, is returned by every light command.
	CommandError error
	// MinBrightness and MaxBrightness are the native brightness range, lights
	// start at MaxBrightness.
	MinBrightness int
	MaxBrightness int

	mu          sync.Mutex
	connected   bool
	names       []string
	lights      []Light
	initialized chan struct{}
	once        sync.Once
}

// NewSimulated creates a simulated gateway that will report the given lights.
func NewSimulated(host string, port int, names ...string) *Simulated {
	return &Simulated{
		Host:           host,
		Port:           port,
		DiscoveryDelay: 100 * time.Millisecond,
		MinBrightness:  SimulatedMinBrightness,
		MaxBrightness:  SimulatedMaxBrightness,
		names:          names,
		initialized:    make(chan struct{}),
	}
}

func (s *Simulated) CreateConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Host == "" {
		return fmt.Errorf("connecting to simulated gateway: empty host")
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	return nil
}

func (s *Simulated) DiscoverLights(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}

	lights := make([]Light, 0, len(s.names))
	for _, name := range s.names {
		lights = append(lights, &SimulatedLight{
			gateway:    s,
			name:       name,
			available:  true,
			brightness: s.MaxBrightness,
		})
	}
	s.lights = lights

	if s.NeverInitialize {
		return nil
	}

	go func() {
		select {
		case <-time.After(s.DiscoveryDelay):
			s.once.Do(func() { close(s.initialized) })
		case <-ctx.Done():
		}
	}()

	return nil
}

func (s *Simulated) LightsInitialized() <-chan struct{} {
	return s.initialized
}

func (s *Simulated) Lights() []Light {
	s.mu.Lock()
	defer s.mu.Unlock()

	lights := make([]Light, len(s.lights))
	copy(lights, s.lights)

	return lights
}

func (s *Simulated) BrightnessRange() (int, int) {
	return s.MinBrightness, s.MaxBrightness
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	return nil
}

func (s *Simulated) command(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}

	return s.CommandError
}

// SimulatedLight is a light held by a Simulated gateway.
type SimulatedLight struct {
	gateway *Simulated

	mu         sync.RWMutex
	name       string
	on         bool
	available  bool
	brightness int
}

func (l *SimulatedLight) Name() string {
	return l.name
}

func (l *SimulatedLight) On() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.on
}

func (l *SimulatedLight) SetOn(on bool) {
	l.mu.Lock()
	l.on = on
	l.mu.Unlock()
}

func (l *SimulatedLight) Brightness() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.brightness
}

func (l *SimulatedLight) SetBrightness(brightness int) {
	l.mu.Lock()
	l.brightness = brightness
	l.mu.Unlock()
}

func (l *SimulatedLight) Available() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.available
}

func (l *SimulatedLight) SetAvailable(available bool) {
	l.mu.Lock()
	l.available = available
	l.mu.Unlock()
}

func (l *SimulatedLight) TurnOn(ctx context.Context) error {
	if err := l.gateway.command(ctx); err != nil {
		return err
	}

	l.SetOn(true)
	return nil
}

func (l *SimulatedLight) TurnOff(ctx context.Context) error {
	if err := l.gateway.command(ctx); err != nil {
		return err
	}

	l.SetOn(false)
	return nil
}

var _ Gateway = &Simulated{}
var _ Light = &SimulatedLight{}
