// Package restore persists the last published state of every light so it can
// be reapplied when the bridge restarts.
package restore

import (
	"context"

	"github.com/victorjacobs/go-ilightsln/light"
)

// Store reads and writes restored state, keyed by the adapter unique ID.
type Store interface {
	light.Restorer
	Save(ctx context.Context, uniqueID string, state light.RestoredState) error
	Close() error
}
