package light

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/victorjacobs/go-ilightsln/gateway"
)

// SupportedFeatures is a bitmask of light capabilities, with the bit values
// Home Assistant uses.
type SupportedFeatures int

const (
	SupportBrightness SupportedFeatures = 1
	SupportWhiteValue SupportedFeatures = 128
)

func (f SupportedFeatures) Has(feature SupportedFeatures) bool {
	return f&feature == feature
}

var (
	ErrAlreadyAttached = errors.New("light adapter already attached")
	ErrNotAttached     = errors.New("light adapter not attached")
	ErrDetached        = errors.New("light adapter detached")
)

// RestoredState is the last state Home Assistant knew of a light, reapplied
// after a restart. Brightness is in host range and nil when it was not known.
// NativeBrightness, when set, is the exact gateway value and wins over
// Brightness, which lost precision when it was converted to the host range.
type RestoredState struct {
	On               bool
	Available        bool
	Brightness       *int
	NativeBrightness *int
}

// Restorer fetches the last persisted state of a light. ok is false when no
// state was ever persisted.
type Restorer interface {
	LastState(ctx context.Context, uniqueID string) (state RestoredState, ok bool, err error)
}

// Refresher is asked to publish fresh state after a command.
type Refresher interface {
	ScheduleUpdate(a *Adapter)
}

// Command is the optional payload of a turn on/off request.
type Command struct {
	Brightness *int
}

// Snapshot is the state of a light as seen by one poll.
type Snapshot struct {
	Name       string
	On         bool
	Brightness int
	Available  bool

	// NativeBrightness is the brightness in the gateway's range.
	NativeBrightness int
}

// Adapter exposes one gateway light as a Home Assistant light entity.
type Adapter struct {
	light     gateway.Light
	scale     Scale
	supported SupportedFeatures
	refresher Refresher

	mu        sync.Mutex
	uniqueID  string
	lifecycle Lifecycle
	logger    *log.Entry
}

// New wraps a discovered light. minBrightness and maxBrightness are the
// gateway's native brightness range.
func New(l gateway.Light, minBrightness, maxBrightness int, refresher Refresher) (*Adapter, error) {
	scale, err := NewScale(minBrightness, maxBrightness)
	if err != nil {
		return nil, fmt.Errorf("light %v: %w", l.Name(), err)
	}

	return &Adapter{
		light:     l,
		scale:     scale,
		supported: SupportBrightness | SupportWhiteValue,
		refresher: refresher,
		uniqueID:  DefaultUniqueID(l.Name()),
		lifecycle: Attached,
		logger:    log.WithField("light", l.Name()),
	}, nil
}

// Attach restores the last known state into the light. It runs once, before
// the adapter is polled or commanded.
func (a *Adapter) Attach(ctx context.Context, restorer Restorer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.lifecycle {
	case Detached:
		return ErrDetached
	case Attached:
	default:
		return ErrAlreadyAttached
	}

	if restorer != nil {
		state, ok, err := restorer.LastState(ctx, a.uniqueID)
		if err != nil {
			return fmt.Errorf("restoring state of %v: %w", a.light.Name(), err)
		}

		if ok {
			a.restore(state)
		}
	}

	a.lifecycle = Active
	return nil
}

func (a *Adapter) restore(state RestoredState) {
	fields := log.Fields{"on": state.On, "available": state.Available}

	a.light.SetOn(state.On)
	a.light.SetAvailable(state.Available)
	switch {
	case state.NativeBrightness != nil:
		native := a.scale.ClampNative(*state.NativeBrightness)
		a.light.SetBrightness(native)
		fields["native"] = native
	case state.Brightness != nil:
		a.light.SetBrightness(a.scale.ToNative(ClampHost(*state.Brightness)))
		fields["brightness"] = *state.Brightness
	}

	a.logger.WithFields(fields).Debug("Restored state")
}

// Detach ends the adapter's life, further commands fail with ErrDetached.
func (a *Adapter) Detach() {
	a.mu.Lock()
	a.lifecycle = Detached
	a.mu.Unlock()
}

func (a *Adapter) Lifecycle() Lifecycle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lifecycle
}

func (a *Adapter) Name() string {
	return a.light.Name()
}

var nonIdentifier = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// DefaultUniqueID derives an ID from a light name, the gateway exposes no
// other identity. Letters of any script are kept.
func DefaultUniqueID(name string) string {
	id := nonIdentifier.ReplaceAllString(strings.ReplaceAll(strings.ToLower(name), " ", "_"), "")
	if id == "" {
		id = "light"
	}
	return fmt.Sprintf("ilightsln_%v", id)
}

func (a *Adapter) UniqueID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uniqueID
}

// SetUniqueID replaces the name derived ID, for lights sharing a name. It must
// be called before Attach.
func (a *Adapter) SetUniqueID(id string) {
	a.mu.Lock()
	a.uniqueID = id
	a.mu.Unlock()
}

func (a *Adapter) IsOn() bool {
	return a.light.On()
}

// Brightness returns the light's brightness in host range.
func (a *Adapter) Brightness() int {
	return a.scale.ToHost(a.light.Brightness())
}

func (a *Adapter) Available() bool {
	return a.light.Available()
}

func (a *Adapter) SupportedFeatures() SupportedFeatures {
	return a.supported
}

func (a *Adapter) ShouldPoll() bool {
	return true
}

// Poll reads the live state of the light and tracks availability changes.
func (a *Adapter) Poll() Snapshot {
	native := a.light.Brightness()
	snapshot := Snapshot{
		Name:             a.Name(),
		On:               a.IsOn(),
		Brightness:       a.scale.ToHost(native),
		Available:        a.Available(),
		NativeBrightness: native,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.lifecycle == Active && !snapshot.Available:
		a.logger.Warn("Light became unavailable")
		a.lifecycle = Unavailable
	case a.lifecycle == Unavailable && snapshot.Available:
		a.logger.Info("Light available again")
		a.lifecycle = Active
	}

	return snapshot
}

func (a *Adapter) TurnOn(ctx context.Context, cmd Command) error {
	return a.command(ctx, cmd, a.light.TurnOn)
}

// TurnOff applies the requested brightness before switching off, the same way
// TurnOn does.
func (a *Adapter) TurnOff(ctx context.Context, cmd Command) error {
	return a.command(ctx, cmd, a.light.TurnOff)
}

func (a *Adapter) command(ctx context.Context, cmd Command, send func(context.Context) error) error {
	a.mu.Lock()

	switch a.lifecycle {
	case Detached:
		a.mu.Unlock()
		return ErrDetached
	case Attached:
		a.mu.Unlock()
		return ErrNotAttached
	}

	a.applyBrightness(cmd)
	err := send(ctx)
	a.mu.Unlock()

	if err != nil {
		return err
	}

	if a.refresher != nil {
		a.refresher.ScheduleUpdate(a)
	}

	return nil
}

// TODO drop for TurnOff once it is confirmed no gateway firmware reads the
// brightness of an off command.
func (a *Adapter) applyBrightness(cmd Command) {
	if cmd.Brightness == nil {
		return
	}

	// MapInt extrapolates, out of range requests must not leave the native range
	native := a.scale.ToNative(ClampHost(*cmd.Brightness))
	a.logger.WithFields(log.Fields{
		"brightness": *cmd.Brightness,
		"native":     native,
	}).Debug("Setting brightness")

	a.light.SetBrightness(native)
}
