package modelcache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmgilman/go/modelcache/internal/hub"
	"github.com/jmgilman/go/modelcache/internal/transfer"
)

// Sentinel errors for cache operations, checked with errors.Is.
var (
	// ErrModelNotFound indicates the identifier exists in no tier: not in
	// the local cache, not in the object store, and not in the origin hub.
	ErrModelNotFound = hub.ErrModelNotFound

	// ErrHubUnauthorized indicates the origin hub rejected the configured
	// credentials for the identifier.
	ErrHubUnauthorized = hub.ErrUnauthorized
)

// TransferError reports an object-store transfer failure after retries were
// exhausted. Any in-progress multipart session has been aborted.
type TransferError = transfer.TransferError

// IntegrityError reports that transferred or extracted bytes did not match
// the expected size. Staged data is discarded, never promoted.
type IntegrityError = transfer.IntegrityError

// ConfigurationError reports a missing or inconsistent configuration value.
// It is surfaced at construction time, before any network call.
type ConfigurationError struct {
	// Field names the configuration value at fault.
	Field string
	// Reason says what is wrong with it.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// OriginFetchError reports that fetching a snapshot from the origin hub
// failed. No partial local state remains when it is returned.
type OriginFetchError struct {
	// Model is the identifier whose fetch failed.
	Model string
	// Err is the underlying hub failure.
	Err error
}

func (e *OriginFetchError) Error() string {
	return fmt.Sprintf("origin fetch %s: %v", e.Model, e.Err)
}

func (e *OriginFetchError) Unwrap() error {
	return e.Err
}

// DeleteScope names the tier(s) a deletion targets. See Cache.DeleteCachedModel.
type DeleteScope string

// Deletion scopes.
const (
	DeleteLocal  DeleteScope = "local"
	DeleteRemote DeleteScope = "remote"
	DeleteBoth   DeleteScope = "both"
)

// PartialDeletionError reports that one tier's deletion failed while
// another succeeded. The failure is never swallowed: callers see exactly
// which scopes completed.
type PartialDeletionError struct {
	// Model is the identifier being deleted.
	Model string
	// Succeeded lists the scopes whose deletion completed.
	Succeeded []DeleteScope
	// Failed maps each failing scope to its error.
	Failed map[DeleteScope]error
}

func (e *PartialDeletionError) Error() string {
	var ok []string
	for _, s := range e.Succeeded {
		ok = append(ok, string(s))
	}
	var failed []string
	for s, err := range e.Failed {
		failed = append(failed, fmt.Sprintf("%s: %v", s, err))
	}
	return fmt.Sprintf("delete %s: succeeded [%s], failed [%s]",
		e.Model, strings.Join(ok, " "), strings.Join(failed, "; "))
}

func (e *PartialDeletionError) Unwrap() error {
	for _, err := range e.Failed {
		return err
	}
	return nil
}

// IsNotFound reports whether err means the model exists in no tier.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}
