package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultPort is the TCP port the iLightSln gateway listens on.
const DefaultPort = 50000

var ErrUnknownDriver = errors.New("unknown gateway driver")

// Light is a single lamp as known by the gateway client. The gateway owns it,
// adapters only hold a reference.
type Light interface {
	Name() string

	On() bool
	SetOn(on bool)

	// Brightness is in the gateway's native range, see Gateway.BrightnessRange.
	Brightness() int
	SetBrightness(brightness int)

	Available() bool
	// SetAvailable is only used to seed restored state, the gateway client
	// otherwise owns availability.
	SetAvailable(available bool)

	// TurnOn sends the on command with the brightness currently held by the light.
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// Gateway owns the network connection and the set of discovered lights.
type Gateway interface {
	CreateConnection(ctx context.Context) error
	// DiscoverLights asks the gateway for its stored lights. Completion is
	// signalled through LightsInitialized.
	DiscoverLights(ctx context.Context) error
	LightsInitialized() <-chan struct{}
	Lights() []Light
	BrightnessRange() (min, max int)
	Close() error
}

// Dialer builds a gateway client for the given address. It must not connect yet.
type Dialer func(host string, port int) (Gateway, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Dialer)
)

// Register makes a gateway driver available under name. Drivers call it from
// their init function.
func Register(name string, dialer Dialer) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if dialer == nil {
		panic("gateway: Register dialer is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("gateway: Register called twice for driver " + name)
	}
	drivers[name] = dialer
}

// Drivers returns the names of the registered drivers, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Open builds a gateway client using the named driver.
func Open(driver string, host string, port int) (Gateway, error) {
	driversMu.RLock()
	dialer, ok := drivers[driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownDriver, driver, Drivers())
	}

	return dialer(host, port)
}
