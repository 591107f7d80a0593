package light

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorjacobs/go-ilightsln/gateway"
)

type fakeLight struct {
	name       string
	on         bool
	available  bool
	brightness int

	commands     []string
	commandError error
}

func (f *fakeLight) Name() string                 { return f.name }
func (f *fakeLight) On() bool                     { return f.on }
func (f *fakeLight) SetOn(on bool)                { f.on = on }
func (f *fakeLight) Brightness() int              { return f.brightness }
func (f *fakeLight) SetBrightness(brightness int) { f.brightness = brightness }
func (f *fakeLight) Available() bool              { return f.available }
func (f *fakeLight) SetAvailable(available bool)  { f.available = available }

func (f *fakeLight) TurnOn(ctx context.Context) error {
	f.commands = append(f.commands, "on")
	if f.commandError != nil {
		return f.commandError
	}
	f.on = true
	return nil
}

func (f *fakeLight) TurnOff(ctx context.Context) error {
	f.commands = append(f.commands, "off")
	if f.commandError != nil {
		return f.commandError
	}
	f.on = false
	return nil
}

var _ gateway.Light = &fakeLight{}

type fakeRestorer struct {
	state RestoredState
	ok    bool
	err   error

	requested []string
}

func (f *fakeRestorer) LastState(ctx context.Context, uniqueID string) (RestoredState, bool, error) {
	f.requested = append(f.requested, uniqueID)
	return f.state, f.ok, f.err
}

type fakeRefresher struct {
	updates []*Adapter
}

func (f *fakeRefresher) ScheduleUpdate(a *Adapter) {
	f.updates = append(f.updates, a)
}

func intPtr(v int) *int {
	return &v
}

func newAdapter(t *testing.T, l *fakeLight, min, max int) (*Adapter, *fakeRefresher) {
	t.Helper()

	refresher := &fakeRefresher{}
	a, err := New(l, min, max, refresher)
	require.NoError(t, err)

	return a, refresher
}

func TestNew(t *testing.T) {
	a, _ := newAdapter(t, &fakeLight{name: "Living Room"}, 0, 100)

	assert.Equal(t, Attached, a.Lifecycle())
	assert.Equal(t, "Living Room", a.Name())
	assert.Equal(t, "ilightsln_living_room", a.UniqueID())
	assert.True(t, a.ShouldPoll())
	assert.True(t, a.SupportedFeatures().Has(SupportBrightness))
	assert.True(t, a.SupportedFeatures().Has(SupportWhiteValue))
	assert.Equal(t, SupportedFeatures(129), a.SupportedFeatures())

	_, err := New(&fakeLight{name: "Broken"}, 7, 7, nil)
	require.ErrorIs(t, err, ErrDegenerateRange)
}

func TestUniqueID(t *testing.T) {
	assert.Equal(t, "ilightsln_客厅", DefaultUniqueID("客厅"))
	assert.Equal(t, "ilightsln_卧室", DefaultUniqueID("卧室"))
	assert.NotEqual(t, DefaultUniqueID("客厅"), DefaultUniqueID("卧室"))
	assert.Equal(t, "ilightsln_café_2", DefaultUniqueID("Café 2!"))
	assert.Equal(t, "ilightsln_light", DefaultUniqueID("!!!"))

	a, _ := newAdapter(t, &fakeLight{name: "Kitchen"}, 0, 100)
	a.SetUniqueID("ilightsln_kitchen_2")
	assert.Equal(t, "ilightsln_kitchen_2", a.UniqueID())

	restorer := &fakeRestorer{}
	require.NoError(t, a.Attach(context.Background(), restorer))
	assert.Equal(t, []string{"ilightsln_kitchen_2"}, restorer.requested)
}

func TestAttachRestoresState(t *testing.T) {
	l := &fakeLight{name: "Kitchen", available: false, brightness: 3}
	a, _ := newAdapter(t, l, 0, 255)

	restorer := &fakeRestorer{
		ok:    true,
		state: RestoredState{On: true, Available: true, Brightness: intPtr(200)},
	}
	require.NoError(t, a.Attach(context.Background(), restorer))

	assert.Equal(t, []string{"ilightsln_kitchen"}, restorer.requested)
	assert.True(t, l.on)
	assert.True(t, l.available)
	assert.Equal(t, 200, l.brightness)
	assert.Equal(t, Active, a.Lifecycle())

	snapshot := a.Poll()
	assert.Equal(t, Snapshot{Name: "Kitchen", On: true, Brightness: 200, Available: true, NativeBrightness: 200}, snapshot)
}

func TestAttachPrefersNativeBrightness(t *testing.T) {
	l := &fakeLight{name: "Kitchen"}
	a, _ := newAdapter(t, l, 0, 100)

	restorer := &fakeRestorer{
		ok:    true,
		state: RestoredState{On: true, Available: true, Brightness: intPtr(198), NativeBrightness: intPtr(78)},
	}
	require.NoError(t, a.Attach(context.Background(), restorer))

	assert.Equal(t, 78, l.brightness)
	assert.Equal(t, 78, a.Poll().NativeBrightness)
}

func TestAttachClampsRestoredBrightness(t *testing.T) {
	l := &fakeLight{name: "Kitchen"}
	a, _ := newAdapter(t, l, 0, 100)
	require.NoError(t, a.Attach(context.Background(), &fakeRestorer{
		ok:    true,
		state: RestoredState{Available: true, NativeBrightness: intPtr(250)},
	}))
	assert.Equal(t, 100, l.brightness)

	l = &fakeLight{name: "Hallway"}
	b, _ := newAdapter(t, l, 0, 100)
	require.NoError(t, b.Attach(context.Background(), &fakeRestorer{
		ok:    true,
		state: RestoredState{Available: true, Brightness: intPtr(-50)},
	}))
	assert.Equal(t, 0, l.brightness)
}

func TestAttachRestoresIntoNativeRange(t *testing.T) {
	l := &fakeLight{name: "Kitchen"}
	a, _ := newAdapter(t, l, 0, 100)

	restorer := &fakeRestorer{
		ok:    true,
		state: RestoredState{On: true, Available: true, Brightness: intPtr(128)},
	}
	require.NoError(t, a.Attach(context.Background(), restorer))

	assert.Equal(t, 50, l.brightness)
	assert.Equal(t, 127, a.Brightness())
}

func TestAttachWithoutRestoredState(t *testing.T) {
	l := &fakeLight{name: "Kitchen", on: true, available: true, brightness: 40}
	a, _ := newAdapter(t, l, 0, 100)

	require.NoError(t, a.Attach(context.Background(), &fakeRestorer{}))
	assert.True(t, l.on)
	assert.True(t, l.available)
	assert.Equal(t, 40, l.brightness)

	b, _ := newAdapter(t, &fakeLight{name: "Hallway"}, 0, 100)
	require.NoError(t, b.Attach(context.Background(), nil))
	assert.Equal(t, Active, b.Lifecycle())
}

func TestAttachRestoredStateWithoutBrightness(t *testing.T) {
	l := &fakeLight{name: "Kitchen", brightness: 40}
	a, _ := newAdapter(t, l, 0, 100)

	restorer := &fakeRestorer{ok: true, state: RestoredState{On: false, Available: false}}
	require.NoError(t, a.Attach(context.Background(), restorer))

	assert.False(t, l.available)
	assert.Equal(t, 40, l.brightness)
}

func TestAttachErrors(t *testing.T) {
	restoreErr := errors.New("store offline")
	a, _ := newAdapter(t, &fakeLight{name: "Kitchen"}, 0, 100)

	err := a.Attach(context.Background(), &fakeRestorer{err: restoreErr})
	require.ErrorIs(t, err, restoreErr)
	assert.Equal(t, Attached, a.Lifecycle())

	require.NoError(t, a.Attach(context.Background(), nil))
	require.ErrorIs(t, a.Attach(context.Background(), nil), ErrAlreadyAttached)

	a.Detach()
	require.ErrorIs(t, a.Attach(context.Background(), nil), ErrDetached)
}

func TestPollTracksAvailability(t *testing.T) {
	l := &fakeLight{name: "Kitchen", available: true}
	a, _ := newAdapter(t, l, 0, 100)
	require.NoError(t, a.Attach(context.Background(), nil))

	l.available = false
	assert.False(t, a.Poll().Available)
	assert.Equal(t, Unavailable, a.Lifecycle())

	l.available = true
	assert.True(t, a.Poll().Available)
	assert.Equal(t, Active, a.Lifecycle())
}

func TestTurnOn(t *testing.T) {
	l := &fakeLight{name: "Kitchen", available: true}
	a, refresher := newAdapter(t, l, 0, 100)
	require.NoError(t, a.Attach(context.Background(), nil))

	require.NoError(t, a.TurnOn(context.Background(), Command{Brightness: intPtr(128)}))
	assert.Equal(t, []string{"on"}, l.commands)
	assert.True(t, l.on)
	assert.Equal(t, 50, l.brightness)
	assert.Equal(t, 127, a.Brightness())
	assert.Equal(t, []*Adapter{a}, refresher.updates)

	require.NoError(t, a.TurnOn(context.Background(), Command{}))
	assert.Equal(t, 50, l.brightness)
}

func TestTurnOffAppliesBrightness(t *testing.T) {
	l := &fakeLight{name: "Kitchen", on: true, available: true, brightness: 100}
	a, refresher := newAdapter(t, l, 0, 100)
	require.NoError(t, a.Attach(context.Background(), nil))

	require.NoError(t, a.TurnOff(context.Background(), Command{Brightness: intPtr(255)}))
	assert.Equal(t, []string{"off"}, l.commands)
	assert.False(t, l.on)
	assert.Equal(t, 100, l.brightness)
	assert.Len(t, refresher.updates, 1)
}

func TestCommandClampsBrightness(t *testing.T) {
	l := &fakeLight{name: "Kitchen", available: true, brightness: 40}
	a, _ := newAdapter(t, l, 0, 100)
	require.NoError(t, a.Attach(context.Background(), nil))

	require.NoError(t, a.TurnOn(context.Background(), Command{Brightness: intPtr(1000)}))
	assert.Equal(t, 100, l.brightness)

	require.NoError(t, a.TurnOn(context.Background(), Command{Brightness: intPtr(-50)}))
	assert.Equal(t, 0, l.brightness)
}

func TestCommandFailurePropagates(t *testing.T) {
	commandErr := errors.New("connection reset")
	l := &fakeLight{name: "Kitchen", commandError: commandErr}
	a, refresher := newAdapter(t, l, 0, 100)
	require.NoError(t, a.Attach(context.Background(), nil))

	require.ErrorIs(t, a.TurnOn(context.Background(), Command{}), commandErr)
	require.ErrorIs(t, a.TurnOff(context.Background(), Command{}), commandErr)
	assert.Empty(t, refresher.updates)
}

func TestCommandLifecycle(t *testing.T) {
	l := &fakeLight{name: "Kitchen"}
	a, _ := newAdapter(t, l, 0, 100)

	require.ErrorIs(t, a.TurnOn(context.Background(), Command{}), ErrNotAttached)

	require.NoError(t, a.Attach(context.Background(), nil))
	a.Detach()
	assert.Equal(t, Detached, a.Lifecycle())
	require.ErrorIs(t, a.TurnOn(context.Background(), Command{}), ErrDetached)
	assert.Empty(t, l.commands)
}

func TestLifecycleString(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "unavailable", Unavailable.String())
	assert.Equal(t, "detached", Detached.String())
}
