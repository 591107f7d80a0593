package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorjacobs/go-ilightsln/bridge"
	"github.com/victorjacobs/go-ilightsln/gateway"
	"github.com/victorjacobs/go-ilightsln/mqtt"
)

type closeTracker struct {
	gateway.Gateway
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return c.Gateway.Close()
}

type nopBroker struct{}

func (nopBroker) Publish(string, bool, []byte) error          { return nil }
func (nopBroker) Subscribe(string, mqtt.MessageHandler) error { return nil }
func (nopBroker) Unsubscribe(string) error                    { return nil }

func TestSetupClosesGatewayOnFailure(t *testing.T) {
	simulated := gateway.NewSimulated("192.168.1.50", gateway.DefaultPort, "Kitchen")
	simulated.NeverInitialize = true
	gw := &closeTracker{Gateway: simulated}

	b := bridge.New(gw, nopBroker{}, nil, nil, bridge.Options{DiscoveryTimeout: 10 * time.Millisecond})
	err := setup(context.Background(), gw, b)

	require.ErrorIs(t, err, bridge.ErrLightsNotInitialized)
	assert.Equal(t, 1, gw.closed)
}

func TestSetupKeepsGatewayOpen(t *testing.T) {
	simulated := gateway.NewSimulated("192.168.1.50", gateway.DefaultPort, "Kitchen")
	simulated.DiscoveryDelay = time.Millisecond
	gw := &closeTracker{Gateway: simulated}

	b := bridge.New(gw, nopBroker{}, nil, nil, bridge.Options{DiscoveryTimeout: time.Second})
	require.NoError(t, setup(context.Background(), gw, b))
	assert.Zero(t, gw.closed)
}

func TestInterrupted(t *testing.T) {
	assert.True(t, interrupted(context.Canceled))
	assert.True(t, interrupted(fmt.Errorf("setting up gateway lights: %w", context.Canceled)))
	assert.False(t, interrupted(errors.New("broker unreachable")))
	assert.False(t, interrupted(context.DeadlineExceeded))
}
