// Package objectstore defines the object-storage capability set the cache
// engine depends on, and provides a MinIO/S3-compatible binding. The engine
// never constructs wire requests itself; everything goes through Client.
package objectstore

import (
	"context"
	"io"
)

// Part records the server acknowledgment for one uploaded part of a
// multipart session.
type Part struct {
	// Number is the 1-based part index.
	Number int
	// ETag is the server-assigned entity tag for the part.
	ETag string
}

// Client is the abstract object-store boundary. Implementations must
// translate backend-specific "not found" conditions to fs.ErrNotExist so
// callers can classify them with errors.Is.
type Client interface {
	// Head reports whether an object exists at key and its size in bytes.
	Head(ctx context.Context, key string) (size int64, exists bool, err error)

	// List returns all object keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Get opens a read stream for the object at key. A positive length
	// restricts the stream to the byte range [offset, offset+length);
	// length <= 0 streams from offset to the end of the object.
	Get(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)

	// Put stores a single object of known size at key.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Delete removes the object at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// InitiateMultipart starts a multipart session for key and returns the
	// server-side upload token.
	InitiateMultipart(ctx context.Context, key string) (string, error)

	// UploadPart uploads one part of a multipart session.
	UploadPart(ctx context.Context, key, uploadID string, number int, r io.Reader, size int64) (Part, error)

	// CompleteMultipart finalizes a session. Parts must be ordered by
	// Number with contiguous indices starting at 1.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) error

	// AbortMultipart discards a session and releases the server-side
	// reservation. A session abandoned without abort leaks an incomplete
	// upload record, so callers must abort on any failure path.
	AbortMultipart(ctx context.Context, key, uploadID string) error
}
