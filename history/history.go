// Package history exports light state changes to InfluxDB.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	log "github.com/sirupsen/logrus"

	"github.com/victorjacobs/go-ilightsln/config"
	"github.com/victorjacobs/go-ilightsln/light"
)

const (
	measurement = "light_state"
	pingTimeout = 5 * time.Second
)

var ErrConnectionFailed = errors.New("influxdb connection failed")

// Recorder receives every published light state.
type Recorder interface {
	Record(uniqueID string, snapshot light.Snapshot, at time.Time)
	Close() error
}

// Nop drops every record. Used when InfluxDB is disabled.
type Nop struct{}

func (Nop) Record(string, light.Snapshot, time.Time) {}
func (Nop) Close() error                             { return nil }

// Influx writes records through the non-blocking InfluxDB write API.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// New returns an InfluxDB recorder, or Nop when InfluxDB is disabled.
func New(ctx context.Context, cfg config.InfluxDB) (Recorder, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			log.Warnf("InfluxDB write failed: %v", err)
		}
	}()

	return &Influx{client: client, writeAPI: writeAPI}, nil
}

func (i *Influx) Record(uniqueID string, snapshot light.Snapshot, at time.Time) {
	i.writeAPI.WritePoint(point(uniqueID, snapshot, at))
}

func (i *Influx) Close() error {
	i.writeAPI.Flush()
	i.client.Close()
	return nil
}

func point(uniqueID string, snapshot light.Snapshot, at time.Time) *write.Point {
	return influxdb2.NewPoint(
		measurement,
		map[string]string{"light": uniqueID, "name": snapshot.Name},
		map[string]interface{}{
			"on":         snapshot.On,
			"brightness": snapshot.Brightness,
			"available":  snapshot.Available,
		},
		at,
	)
}
