// Package transfer moves large byte streams between local files and the
// object store. Payloads at or above the multipart threshold are split into
// ordered parts uploaded on a bounded worker pool; downloads use ranged GETs
// reassembled into a staging file. Each part operation carries its own retry
// budget, and any unrecoverable failure aborts the whole session so partial
// objects never become visible at the target key.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/jmgilman/go/modelcache/internal/objectstore"
)

const (
	// DefaultChunkSize is the part size used when none is configured.
	DefaultChunkSize = 64 * 1024 * 1024

	// DefaultMaxParallelParts bounds the part-upload worker pool.
	DefaultMaxParallelParts = 4

	// DefaultPartRetries is the per-part retry budget after the first
	// attempt.
	DefaultPartRetries = 3
)

// Config tunes transfer behavior. Zero values select the defaults above;
// Threshold defaults to ChunkSize so a payload needing more than one chunk
// always goes multipart.
type Config struct {
	// ChunkSize is the part size in bytes. The last part may be shorter.
	ChunkSize int64

	// Threshold is the payload size at which uploads switch from a single
	// PUT to a multipart session.
	Threshold int64

	// MaxParallelParts bounds concurrent part transfers.
	MaxParallelParts int

	// PartRetries is the number of retries per part after the initial
	// attempt.
	PartRetries uint64

	// PartTimeout bounds each individual part or object operation. A
	// timed-out attempt counts against the part's retry budget. Zero
	// means no per-attempt bound beyond the caller's context.
	PartTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Threshold <= 0 {
		c.Threshold = c.ChunkSize
	}
	if c.MaxParallelParts <= 0 {
		c.MaxParallelParts = DefaultMaxParallelParts
	}
	if c.PartRetries == 0 {
		c.PartRetries = DefaultPartRetries
	}
	return c
}

// Uploader moves byte streams of known size to and from the object store.
type Uploader struct {
	store objectstore.Client
	cfg   Config
}

// New creates an Uploader over the given store binding.
func New(store objectstore.Client, cfg Config) *Uploader {
	return &Uploader{store: store, cfg: cfg.withDefaults()}
}

// PartCount returns the number of parts a payload of the given size splits
// into: ceil(size/chunk), with a minimum of one part.
func (u *Uploader) PartCount(size int64) int {
	if size <= 0 {
		return 1
	}
	return int((size + u.cfg.ChunkSize - 1) / u.cfg.ChunkSize)
}

// Upload stores the file at path under key, using a multipart session when
// the file size is at or above the configured threshold. It returns the
// number of bytes uploaded.
func (u *Uploader) Upload(ctx context.Context, key, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat upload source: %w", err)
	}
	size := info.Size()

	if size < u.cfg.Threshold {
		if err := u.putSimple(ctx, key, path, size); err != nil {
			return 0, err
		}
		return size, nil
	}

	if err := u.putMultipart(ctx, key, path, size); err != nil {
		return 0, err
	}
	return size, nil
}

// putSimple uploads the whole file with a single PUT, retrying the full
// object on transient failure.
func (u *Uploader) putSimple(ctx context.Context, key, path string, size int64) error {
	op := func() error {
		f, err := os.Open(path)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()
		opCtx, cancel := u.opContext(ctx)
		defer cancel()
		return u.store.Put(opCtx, key, f, size)
	}
	if err := backoff.Retry(op, u.backOff(ctx)); err != nil {
		return &TransferError{Key: key, Err: err}
	}
	return nil
}

// putMultipart runs a full multipart session: initiate, bounded-parallel
// part uploads with per-part retries, then complete with parts ordered by
// index. Any failure aborts the session before the error is returned.
func (u *Uploader) putMultipart(ctx context.Context, key, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	uploadID, err := u.store.InitiateMultipart(ctx, key)
	if err != nil {
		return &TransferError{Key: key, Err: err}
	}

	count := u.PartCount(size)
	parts := make([]objectstore.Part, count)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(u.cfg.MaxParallelParts)

	for i := 0; i < count; i++ {
		number := i + 1
		offset := int64(i) * u.cfg.ChunkSize
		length := min64(u.cfg.ChunkSize, size-offset)

		eg.Go(func() error {
			op := func() error {
				section := io.NewSectionReader(f, offset, length)
				opCtx, cancel := u.opContext(egCtx)
				defer cancel()
				part, err := u.store.UploadPart(opCtx, key, uploadID, number, section, length)
				if err != nil {
					return err
				}
				parts[number-1] = part
				return nil
			}
			if err := backoff.Retry(op, u.backOff(egCtx)); err != nil {
				return &TransferError{Key: key, Part: number, Err: err}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		// Abort must release the server-side reservation; best effort on
		// the parent context since egCtx is already cancelled.
		_ = u.store.AbortMultipart(context.WithoutCancel(ctx), key, uploadID)
		return err
	}

	if err := u.store.CompleteMultipart(ctx, key, uploadID, parts); err != nil {
		_ = u.store.AbortMultipart(context.WithoutCancel(ctx), key, uploadID)
		return &TransferError{Key: key, Err: err}
	}
	return nil
}

// Download streams the object at key into the file at path using ranged GETs
// of chunk size, written via WriteAt on a bounded worker pool. The file is
// only considered good when its final byte count matches size; a mismatch is
// an IntegrityError and the caller must discard the staging file.
func (u *Uploader) Download(ctx context.Context, key, path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("preallocate staging file: %w", err)
	}

	count := u.PartCount(size)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(u.cfg.MaxParallelParts)

	for i := 0; i < count; i++ {
		number := i + 1
		offset := int64(i) * u.cfg.ChunkSize
		length := min64(u.cfg.ChunkSize, size-offset)

		eg.Go(func() error {
			op := func() error {
				opCtx, cancel := u.opContext(egCtx)
				defer cancel()
				return u.downloadChunk(opCtx, key, f, offset, length)
			}
			if err := backoff.Retry(op, u.backOff(egCtx)); err != nil {
				return &TransferError{Key: key, Part: number, Err: err}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync staging file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat staging file: %w", err)
	}
	if info.Size() != size {
		return &IntegrityError{Key: key, Expected: size, Actual: info.Size()}
	}
	return nil
}

// downloadChunk fetches one byte range and writes it at its offset.
func (u *Uploader) downloadChunk(ctx context.Context, key string, f *os.File, offset, length int64) error {
	rc, err := u.store.Get(ctx, key, offset, length)
	if err != nil {
		return err
	}
	defer rc.Close()

	n, err := io.Copy(io.NewOffsetWriter(f, offset), io.LimitReader(rc, length))
	if err != nil {
		return err
	}
	if n != length {
		return fmt.Errorf("short range read: got %d of %d bytes", n, length)
	}
	return nil
}

// opContext bounds a single attempt by the configured part timeout. A
// timeout counts as that attempt's failure and consumes retry budget.
func (u *Uploader) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if u.cfg.PartTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, u.cfg.PartTimeout)
}

// backOff builds the per-operation retry policy: exponential backoff capped
// at the configured retry count and bound to ctx.
func (u *Uploader) backOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), u.cfg.PartRetries), ctx)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
