package modelcache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmgilman/go/modelcache/internal/hub"
	"github.com/jmgilman/go/modelcache/internal/index"
	"github.com/jmgilman/go/modelcache/internal/keys"
	"github.com/jmgilman/go/modelcache/internal/objectstore"
	"github.com/jmgilman/go/modelcache/internal/transfer"
)

// StorageLocation classifies where a usable copy of an identifier currently
// exists. It is computed fresh on every resolution; remote state can change
// externally between calls.
type StorageLocation int

// Storage locations, in resolution order.
const (
	// LocationAbsent means no tier holds the artifact.
	LocationAbsent StorageLocation = iota
	// LocationLocal means a valid local cache entry exists.
	LocationLocal
	// LocationRemote means the object store holds the artifact.
	LocationRemote
	// LocationOrigin means neither cache tier holds the artifact; it must
	// come from the origin hub. Origin existence is only confirmed by the
	// fetch itself.
	LocationOrigin
)

func (l StorageLocation) String() string {
	switch l {
	case LocationLocal:
		return "local"
	case LocationRemote:
		return "remote"
	case LocationOrigin:
		return "origin"
	default:
		return "absent"
	}
}

// ListSource selects which tiers ListCachedModels enumerates.
type ListSource string

// List sources.
const (
	SourceLocal  ListSource = "local"
	SourceRemote ListSource = "remote"
	SourceBoth   ListSource = "both"
)

// Cache reconciles model artifacts across three tiers: the local disk
// cache, an S3-compatible object store, and the origin hub. It is the sole
// entry point of the engine; resolution consults the local tier first, then
// the object store, then the origin, and writes through on every promotion.
//
// Operations on distinct identifiers are safe to run concurrently. The
// engine assumes a single writer per identifier per host; concurrent
// GetOrDownload calls for the same identifier from independent processes
// may both fetch and both upload.
type Cache struct {
	cfg      Config
	store    ObjectStore
	hub      HubFetcher
	index    *index.Index
	uploader *transfer.Uploader
	archiver *TarGzArchiver
	hook     TransferHook
	logger   *slog.Logger
}

// New constructs a Cache from an immutable configuration. Missing required
// connection settings surface as a ConfigurationError before any network
// call.
func New(cfg Config, opts ...Option) (*Cache, error) {
	var o cacheOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.withDefaults()
	cfg.Prefix = keys.NormalizePrefix(cfg.Prefix)
	if err := cfg.validate(o.store != nil); err != nil {
		return nil, err
	}

	store := o.store
	if store == nil {
		var err error
		store, err = objectstore.NewMinioStore(objectstore.MinioConfig{
			Endpoint:   cfg.Endpoint,
			Bucket:     cfg.Bucket,
			AccessKey:  cfg.AccessKey,
			SecretKey:  cfg.SecretKey,
			Region:     cfg.Region,
			VerifyTLS:  !cfg.SkipTLSVerify,
			RootCAPath: cfg.RootCAPath,
		})
		if err != nil {
			return nil, &ConfigurationError{Field: "endpoint", Reason: err.Error()}
		}
	}

	fetcher := o.hub
	if fetcher == nil {
		fetcher = hub.NewHTTPFetcher(hub.HTTPFetcherConfig{
			BaseURL: cfg.HubEndpoint,
			Token:   cfg.HubToken,
		})
	}

	ix, err := index.New(cfg.CacheDir, cfg.StoreAsArchive)
	if err != nil {
		return nil, &ConfigurationError{Field: "cache dir", Reason: err.Error()}
	}

	hook := o.hook
	if hook == nil {
		hook = NopHook{}
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Cache{
		cfg:   cfg,
		store: store,
		hub:   fetcher,
		index: ix,
		uploader: transfer.New(store, transfer.Config{
			ChunkSize:        cfg.ChunkSize,
			Threshold:        cfg.MultipartThreshold,
			MaxParallelParts: cfg.MaxParallelParts,
			PartRetries:      cfg.PartRetries,
			PartTimeout:      cfg.OpTimeout,
		}),
		archiver: NewTarGzArchiver(),
		hook:     hook,
		logger:   logger,
	}, nil
}

// GetOrDownload guarantees a usable local copy of the identifier and
// returns its path. The local tier is always trusted when present (no
// re-validation against remote state); the object store is consulted only
// when local is absent, and the origin hub only when both caches miss.
func (c *Cache) GetOrDownload(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("model identifier cannot be empty")
	}

	if c.index.Valid(id) {
		c.logger.DebugContext(ctx, "cache hit", "model", id, "tier", "local")
		return c.index.EntryPath(id), nil
	}

	exists, size, err := c.remoteExists(ctx, id)
	if err != nil {
		return "", err
	}
	if exists {
		c.logger.InfoContext(ctx, "promoting from object store", "model", id)
		return c.promoteFromRemote(ctx, id, size)
	}

	c.logger.InfoContext(ctx, "fetching from origin", "model", id)
	return c.promoteFromOrigin(ctx, id)
}

// Locate classifies where a usable copy of the identifier currently lives.
// LocationOrigin is presumptive: the hub is not consulted until a fetch is
// actually needed.
func (c *Cache) Locate(ctx context.Context, id string) (StorageLocation, error) {
	if id == "" {
		return LocationAbsent, fmt.Errorf("model identifier cannot be empty")
	}
	if c.index.Valid(id) {
		return LocationLocal, nil
	}
	exists, _, err := c.remoteExists(ctx, id)
	if err != nil {
		return LocationAbsent, err
	}
	if exists {
		return LocationRemote, nil
	}
	return LocationOrigin, nil
}

// ListCachedModels enumerates identifiers cached in the selected tiers.
// With SourceBoth an identifier present in both tiers appears once; the
// tiers are not cross-validated.
func (c *Cache) ListCachedModels(ctx context.Context, source ListSource) ([]string, error) {
	if source != SourceLocal && source != SourceRemote && source != SourceBoth {
		return nil, fmt.Errorf("invalid list source %q", source)
	}

	set := make(map[string]struct{})

	if source == SourceLocal || source == SourceBoth {
		local, err := c.index.List()
		if err != nil {
			return nil, err
		}
		for _, id := range local {
			set[id] = struct{}{}
		}
	}

	if source == SourceRemote || source == SourceBoth {
		opCtx, cancel := c.opCtx(ctx)
		defer cancel()
		remoteKeys, err := c.store.List(opCtx, c.cfg.Prefix)
		if err != nil {
			return nil, fmt.Errorf("list object store: %w", err)
		}
		for _, key := range remoteKeys {
			if id, ok := keys.IdentifierFromKey(c.cfg.Prefix, key, c.cfg.StoreAsArchive); ok {
				set[id] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteCachedModel removes the identifier from the selected tiers. Each
// sub-deletion is independent; when one tier fails the result enumerates
// which scopes succeeded instead of swallowing the failure.
func (c *Cache) DeleteCachedModel(ctx context.Context, id string, scope DeleteScope) error {
	if scope != DeleteLocal && scope != DeleteRemote && scope != DeleteBoth {
		return fmt.Errorf("invalid delete scope %q", scope)
	}

	var succeeded []DeleteScope
	failed := make(map[DeleteScope]error)

	if scope == DeleteLocal || scope == DeleteBoth {
		if _, err := c.index.Remove(id); err != nil {
			failed[DeleteLocal] = err
		} else {
			succeeded = append(succeeded, DeleteLocal)
		}
	}

	if scope == DeleteRemote || scope == DeleteBoth {
		if err := c.deleteRemote(ctx, id); err != nil {
			failed[DeleteRemote] = err
		} else {
			succeeded = append(succeeded, DeleteRemote)
		}
	}

	if len(failed) == 0 {
		return nil
	}
	return &PartialDeletionError{Model: id, Succeeded: succeeded, Failed: failed}
}

// LocalPath returns the identifier's local entry path and whether a valid
// entry exists. It never touches the network.
func (c *Cache) LocalPath(id string) (string, bool) {
	if !c.index.Valid(id) {
		return "", false
	}
	return c.index.EntryPath(id), true
}

// LocalSize returns the on-disk size of the identifier's local entry: the
// archive size in archive mode, the summed file sizes in tree mode.
func (c *Cache) LocalSize(id string) (int64, error) {
	if !c.index.Valid(id) {
		return 0, fmt.Errorf("model %s is not cached locally", id)
	}
	return c.index.Size(id)
}

// remoteExists reports whether the object store holds the identifier. In
// archive mode this is one HEAD on the derived key (size included); in tree
// mode any object under the derived prefix counts.
func (c *Cache) remoteExists(ctx context.Context, id string) (bool, int64, error) {
	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	if c.cfg.StoreAsArchive {
		size, ok, err := c.store.Head(opCtx, keys.ArchiveKey(c.cfg.Prefix, id))
		if err != nil {
			return false, 0, fmt.Errorf("head object store: %w", err)
		}
		return ok, size, nil
	}

	remoteKeys, err := c.store.List(opCtx, keys.TreePrefix(c.cfg.Prefix, id))
	if err != nil {
		return false, 0, fmt.Errorf("list object store: %w", err)
	}
	return len(remoteKeys) > 0, 0, nil
}

// promoteFromRemote materializes a local entry from the object store.
func (c *Cache) promoteFromRemote(ctx context.Context, id string, size int64) (string, error) {
	if c.cfg.StoreAsArchive {
		return c.downloadArchive(ctx, id, size)
	}
	return c.downloadTree(ctx, id)
}

// downloadArchive streams the remote archive into staging and renames it
// into place once the byte count checks out.
func (c *Cache) downloadArchive(ctx context.Context, id string, size int64) (string, error) {
	key := keys.ArchiveKey(c.cfg.Prefix, id)
	staged := c.index.StagingFile(keys.ArchiveSuffix)
	start := time.Now()

	if err := c.uploader.Download(ctx, key, staged, size); err != nil {
		c.index.Discard(staged)
		c.notify(ctx, TransferEvent{Op: OpDownload, Model: id, Key: key, Duration: time.Since(start), Err: err})
		return "", err
	}

	path, err := c.index.Commit(staged, id)
	if err != nil {
		c.index.Discard(staged)
		return "", err
	}
	c.notify(ctx, TransferEvent{Op: OpDownload, Model: id, Key: key, Bytes: size, Duration: time.Since(start)})
	return path, nil
}

// downloadTree materializes every object under the model's prefix into a
// staged directory, then renames the directory into place.
func (c *Cache) downloadTree(ctx context.Context, id string) (string, error) {
	treePrefix := keys.TreePrefix(c.cfg.Prefix, id)
	start := time.Now()

	opCtx, cancel := c.opCtx(ctx)
	remoteKeys, err := c.store.List(opCtx, treePrefix)
	cancel()
	if err != nil {
		return "", fmt.Errorf("list object store: %w", err)
	}

	staged, err := c.index.StagingDir()
	if err != nil {
		return "", err
	}

	var total int64
	for _, key := range remoteKeys {
		rel := strings.TrimPrefix(key, treePrefix)
		if rel == "" || !filepath.IsLocal(filepath.FromSlash(rel)) {
			continue
		}
		dest := filepath.Join(staged, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			c.index.Discard(staged)
			return "", fmt.Errorf("create staging dir: %w", err)
		}

		opCtx, cancel := c.opCtx(ctx)
		size, ok, err := c.store.Head(opCtx, key)
		cancel()
		if err != nil || !ok {
			c.index.Discard(staged)
			if err == nil {
				err = fmt.Errorf("object %s disappeared during download", key)
			}
			c.notify(ctx, TransferEvent{Op: OpDownload, Model: id, Key: key, Duration: time.Since(start), Err: err})
			return "", err
		}

		if err := c.uploader.Download(ctx, key, dest, size); err != nil {
			c.index.Discard(staged)
			c.notify(ctx, TransferEvent{Op: OpDownload, Model: id, Key: key, Duration: time.Since(start), Err: err})
			return "", err
		}
		total += size
	}

	path, err := c.index.Commit(staged, id)
	if err != nil {
		c.index.Discard(staged)
		return "", err
	}
	c.notify(ctx, TransferEvent{Op: OpDownload, Model: id, Key: treePrefix, Bytes: total, Duration: time.Since(start)})
	return path, nil
}

// promoteFromOrigin fetches a snapshot from the hub, registers it locally
// in the configured representation, and writes it through to the object
// store. An origin failure removes the staging directory and leaves no
// partial local state.
func (c *Cache) promoteFromOrigin(ctx context.Context, id string) (string, error) {
	staged, err := c.index.StagingDir()
	if err != nil {
		return "", err
	}

	start := time.Now()
	if err := c.hub.FetchSnapshot(ctx, id, staged); err != nil {
		c.index.Discard(staged)
		c.notify(ctx, TransferEvent{Op: OpOriginFetch, Model: id, Duration: time.Since(start), Err: err})
		return "", &OriginFetchError{Model: id, Err: err}
	}
	c.notify(ctx, TransferEvent{Op: OpOriginFetch, Model: id, Duration: time.Since(start)})

	if c.cfg.StoreAsArchive {
		return c.registerAndUploadArchive(ctx, id, staged)
	}
	return c.registerAndUploadTree(ctx, id, staged)
}

// registerAndUploadArchive packs the snapshot, commits the archive as the
// local entry, and uploads it (multipart above the threshold). An upload
// failure removes the just-created local entry so the tiers never diverge
// silently.
func (c *Cache) registerAndUploadArchive(ctx context.Context, id, snapshotDir string) (string, error) {
	stagedArchive := c.index.StagingFile(keys.ArchiveSuffix)
	if err := c.archiver.PackFile(ctx, snapshotDir, stagedArchive); err != nil {
		c.index.Discard(snapshotDir)
		c.index.Discard(stagedArchive)
		return "", fmt.Errorf("pack snapshot: %w", err)
	}
	c.index.Discard(snapshotDir)

	path, err := c.index.Commit(stagedArchive, id)
	if err != nil {
		c.index.Discard(stagedArchive)
		return "", err
	}

	key := keys.ArchiveKey(c.cfg.Prefix, id)
	start := time.Now()
	n, err := c.uploader.Upload(ctx, key, path)
	if err != nil {
		_, _ = c.index.Remove(id)
		c.notify(ctx, TransferEvent{Op: OpUpload, Model: id, Key: key, Duration: time.Since(start), Err: err})
		return "", err
	}
	c.notify(ctx, TransferEvent{Op: OpUpload, Model: id, Key: key, Bytes: n, Duration: time.Since(start)})
	return path, nil
}

// registerAndUploadTree commits the snapshot directory as the local entry
// and uploads each file under the model's prefix, preserving relative
// paths.
func (c *Cache) registerAndUploadTree(ctx context.Context, id, snapshotDir string) (string, error) {
	path, err := c.index.Commit(snapshotDir, id)
	if err != nil {
		c.index.Discard(snapshotDir)
		return "", err
	}

	treePrefix := keys.TreePrefix(c.cfg.Prefix, id)
	start := time.Now()

	var total int64
	err = filepath.WalkDir(path, func(file string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(path, file)
		if err != nil {
			return err
		}
		key := treePrefix + filepath.ToSlash(rel)
		n, err := c.uploader.Upload(ctx, key, file)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	if err != nil {
		// Roll back both tiers so a later call re-promotes cleanly.
		_, _ = c.index.Remove(id)
		_ = c.deleteRemote(context.WithoutCancel(ctx), id)
		c.notify(ctx, TransferEvent{Op: OpUpload, Model: id, Key: treePrefix, Duration: time.Since(start), Err: err})
		return "", err
	}

	c.notify(ctx, TransferEvent{Op: OpUpload, Model: id, Key: treePrefix, Bytes: total, Duration: time.Since(start)})
	return path, nil
}

// deleteRemote removes the identifier's remote representation: the archive
// object, or every object under the tree prefix.
func (c *Cache) deleteRemote(ctx context.Context, id string) error {
	if c.cfg.StoreAsArchive {
		opCtx, cancel := c.opCtx(ctx)
		defer cancel()
		return c.store.Delete(opCtx, keys.ArchiveKey(c.cfg.Prefix, id))
	}

	treePrefix := keys.TreePrefix(c.cfg.Prefix, id)
	opCtx, cancel := c.opCtx(ctx)
	remoteKeys, err := c.store.List(opCtx, treePrefix)
	cancel()
	if err != nil {
		return err
	}
	for _, key := range remoteKeys {
		opCtx, cancel := c.opCtx(ctx)
		err := c.store.Delete(opCtx, key)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// notify forwards a transfer event to the configured hook.
func (c *Cache) notify(ctx context.Context, event TransferEvent) {
	c.hook.OnTransfer(ctx, event)
}

// opCtx bounds a single object-store call by the configured timeout.
func (c *Cache) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.OpTimeout)
}
