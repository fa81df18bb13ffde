package modelcache

import (
	"log/slog"

	"github.com/jmgilman/go/modelcache/internal/hub"
	"github.com/jmgilman/go/modelcache/internal/objectstore"
)

// ObjectStore is the abstract object-storage boundary the cache engine
// talks to. The default binding connects to the configured MinIO/S3
// endpoint; tests inject in-memory implementations.
type ObjectStore = objectstore.Client

// HubFetcher is the abstract origin-hub boundary: fetch a snapshot of a
// model identifier into a target directory.
type HubFetcher = hub.Fetcher

// Option is a functional option for configuring a Cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	store  ObjectStore
	hub    HubFetcher
	hook   TransferHook
	logger *slog.Logger
}

// WithObjectStore injects an object-store binding, bypassing the default
// MinIO client. Primarily used for testing.
func WithObjectStore(store ObjectStore) Option {
	return func(o *cacheOptions) {
		o.store = store
	}
}

// WithHubFetcher injects an origin-hub binding, bypassing the default HTTP
// hub client.
func WithHubFetcher(f HubFetcher) Option {
	return func(o *cacheOptions) {
		o.hub = f
	}
}

// WithTransferHook registers a hook notified after each tier-promoting
// transfer. Logging and metrics collaborators implement TransferHook
// independently; the engine defines only the notification point.
func WithTransferHook(hook TransferHook) Option {
	return func(o *cacheOptions) {
		o.hook = hook
	}
}

// WithLogger sets the structured logger used for operational logging.
// Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *cacheOptions) {
		o.logger = logger
	}
}
