package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/apperrors"
)

// Config carries connection settings for opening a connector.
type Config struct {
	// DSN is the driver-specific connection string.
	DSN string
	// Schema optionally narrows catalog operations to one schema.
	Schema string
}

// Factory creates a connector for one datasource kind.
type Factory func(ctx context.Context, cfg Config, logger *zap.Logger) (Connector, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// Registered returns the registered adapter kinds, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// IsRegistered checks if an adapter kind is available.
func IsRegistered(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}

// Open creates a connector of the given kind.
func Open(ctx context.Context, kind string, cfg Config, logger *zap.Logger) (Connector, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", apperrors.ErrNoConnector, kind, Registered())
	}
	return factory(ctx, cfg, logger)
}
