package modelcache

import (
	"context"
	"log/slog"
	"time"
)

// TransferOp names the kind of tier promotion a TransferEvent describes.
type TransferOp string

// Transfer operations reported through the hook.
const (
	// OpOriginFetch is a snapshot fetch from the origin hub.
	OpOriginFetch TransferOp = "origin_fetch"
	// OpUpload is a promotion from the local tier to the object store.
	OpUpload TransferOp = "upload"
	// OpDownload is a promotion from the object store to the local tier.
	OpDownload TransferOp = "download"
)

// TransferEvent describes one completed (or failed) transfer between tiers.
type TransferEvent struct {
	// Op is the transfer kind.
	Op TransferOp
	// Model is the identifier being transferred.
	Model string
	// Key is the object-store key involved, empty for origin fetches.
	Key string
	// Bytes is the payload size, when known.
	Bytes int64
	// Duration is the wall time the transfer took.
	Duration time.Duration
	// Err is non-nil when the transfer failed.
	Err error
}

// TransferHook is notified after each tier-promoting operation. The engine
// calls it synchronously; implementations should return quickly and must
// not retain the event's context.
type TransferHook interface {
	OnTransfer(ctx context.Context, event TransferEvent)
}

// NopHook discards all events.
type NopHook struct{}

// OnTransfer implements TransferHook.
func (NopHook) OnTransfer(context.Context, TransferEvent) {}

// SlogHook logs each transfer through a structured logger.
type SlogHook struct {
	logger *slog.Logger
}

// NewSlogHook creates a hook that records transfers via logger.
func NewSlogHook(logger *slog.Logger) *SlogHook {
	return &SlogHook{logger: logger}
}

// OnTransfer implements TransferHook.
func (h *SlogHook) OnTransfer(ctx context.Context, event TransferEvent) {
	attrs := []any{
		"op", string(event.Op),
		"model", event.Model,
		"duration_ms", event.Duration.Milliseconds(),
	}
	if event.Key != "" {
		attrs = append(attrs, "key", event.Key)
	}
	if event.Bytes > 0 {
		attrs = append(attrs, "bytes", event.Bytes)
	}
	if event.Err != nil {
		attrs = append(attrs, "error", event.Err.Error())
		h.logger.ErrorContext(ctx, "transfer failed", attrs...)
		return
	}
	h.logger.InfoContext(ctx, "transfer completed", attrs...)
}

// Compile-time interface checks.
var (
	_ TransferHook = NopHook{}
	_ TransferHook = (*SlogHook)(nil)
)
