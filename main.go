package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/victorjacobs/go-ilightsln/bridge"
	"github.com/victorjacobs/go-ilightsln/config"
	"github.com/victorjacobs/go-ilightsln/gateway"
	"github.com/victorjacobs/go-ilightsln/history"
	"github.com/victorjacobs/go-ilightsln/light"
	"github.com/victorjacobs/go-ilightsln/mqtt"
	"github.com/victorjacobs/go-ilightsln/restore"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Configuration
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "ilightsln",
		Usage: "Expose iLightSln gateway lights to Home Assistant over MQTT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Configuration file (YAML or JSON)",
				Value:       "ilightsln.yaml",
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Level of logging, overrides log_level from the configuration",
				Destination: &logLevel,
			},
		},

		Before: func(c *cli.Context) error {
			var err error
			if cfg, err = config.LoadConfiguration(configPath); err != nil {
				return err
			}

			level := cfg.LogLevel
			if logLevel != "" {
				level = logLevel
			}

			parsed, err := log.ParseLevel(level)
			if err != nil {
				return err
			}
			log.SetLevel(parsed)

			return nil
		},

		Action: func(c *cli.Context) error { return run(ctx) },

		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Bridge the gateway lights to Home Assistant",
				Action: func(c *cli.Context) error { return run(ctx) },
			},
			{
				Name:   "lights",
				Usage:  "List the lights stored on the gateway",
				Action: func(c *cli.Context) error { return listLights(ctx) },
			},
			{
				Name:  "validate",
				Usage: "Check the configuration file",
				Action: func(c *cli.Context) error {
					fmt.Printf("%v is valid\n", configPath)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if interrupted(err) {
			log.Info("Interrupted")
			return
		}
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	gw, err := gateway.Open(cfg.Gateway.Driver, cfg.Gateway.Host, cfg.Gateway.Port)
	if err != nil {
		return err
	}

	log.Printf("Connecting to %v:%v", cfg.Gateway.Host, cfg.Gateway.Port)

	mqttClient, err := mqtt.Connect(cfg.MQTT.ClientOptions())
	if err != nil {
		return err
	}
	defer mqttClient.Close()

	store, err := openStore(mqttClient)
	if err != nil {
		return err
	}
	defer store.Close()

	recorder, err := history.New(ctx, cfg.InfluxDB)
	if err != nil {
		return err
	}
	defer recorder.Close()

	b := bridge.New(gw, mqttClient, store, recorder, bridge.Options{
		DiscoveryTimeout: cfg.Gateway.DiscoveryTimeout,
		RefreshInterval:  cfg.RefreshInterval(),
	})

	if err := setup(ctx, gw, b); err != nil {
		return err
	}
	defer b.Close()

	if err := b.RegisterLights(ctx); err != nil {
		return err
	}

	b.Run(ctx)

	return nil
}

// setup discovers the lights, closing the gateway when that fails since the
// bridge only closes it once set up.
func setup(ctx context.Context, gw gateway.Gateway, b *bridge.Bridge) error {
	if err := b.Setup(ctx); err != nil {
		if closeErr := gw.Close(); closeErr != nil {
			log.Warnf("Closing gateway failed: %v", closeErr)
		}
		return fmt.Errorf("setting up gateway lights: %w", err)
	}

	return nil
}

// interrupted reports whether err, possibly wrapped, comes from a signal.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

func openStore(mqttClient *mqtt.Client) (restore.Store, error) {
	switch cfg.State.Backend {
	case config.StateBackendSQLite:
		return restore.OpenSQLite(cfg.State.Path)
	default:
		return restore.NewRetainedStore(mqttClient, restore.DefaultRetainedWindow), nil
	}
}

func listLights(ctx context.Context) error {
	gw, err := gateway.Open(cfg.Gateway.Driver, cfg.Gateway.Host, cfg.Gateway.Port)
	if err != nil {
		return err
	}
	defer gw.Close()

	lights, err := bridge.DiscoverLights(ctx, gw, cfg.Gateway.DiscoveryTimeout)
	if err != nil {
		return err
	}

	min, max := gw.BrightnessRange()
	for _, l := range lights {
		adapter, err := light.New(l, min, max, nil)
		if err != nil {
			return err
		}

		fmt.Printf("%v\tid=%v\ton=%v\tbrightness=%v\tavailable=%v\n",
			adapter.Name(), adapter.UniqueID(), adapter.IsOn(), adapter.Brightness(), adapter.Available())
	}

	return nil
}
