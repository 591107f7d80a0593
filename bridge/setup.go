package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/victorjacobs/go-ilightsln/gateway"
)

var (
	ErrLightsNotInitialized = errors.New("initialization of lights failed")
	ErrNoLights             = errors.New("no lights stored on gateway")
)

// DiscoverLights connects to the gateway and waits at most timeout for it to
// report its stored lights. Either failure aborts the whole setup.
func DiscoverLights(ctx context.Context, gw gateway.Gateway, timeout time.Duration) ([]gateway.Light, error) {
	if err := gw.CreateConnection(ctx); err != nil {
		return nil, fmt.Errorf("connecting to gateway: %w", err)
	}

	if err := gw.DiscoverLights(ctx); err != nil {
		return nil, fmt.Errorf("discovering lights: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-gw.LightsInitialized():
	case <-timer.C:
		log.WithField("timeout", timeout).Error("Initialization of lights failed")
		return nil, ErrLightsNotInitialized
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	lights := gw.Lights()
	if len(lights) == 0 {
		log.Error("No lights stored on gateway")
		return nil, ErrNoLights
	}

	log.Infof("Gateway reported %v lights", len(lights))

	return lights, nil
}
