package objectstore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds connection settings for the MinIO binding.
type MinioConfig struct {
	// Endpoint is the object-store base URL including scheme, e.g.
	// "https://s3.internal:9000". The scheme determines TLS use.
	Endpoint string

	// Bucket is the target container name.
	Bucket string

	// AccessKey and SecretKey are the store credentials.
	AccessKey string
	SecretKey string

	// Region is the store region parameter.
	Region string

	// VerifyTLS controls certificate validation for https endpoints.
	VerifyTLS bool

	// RootCAPath optionally points to a PEM bundle used instead of the
	// system trust store when VerifyTLS is enabled.
	RootCAPath string
}

// MinioStore implements Client backed by a MinIO/S3-compatible server.
// Multipart primitives use the low-level Core API so that part ordering,
// retry, and abort stay under the caller's control.
type MinioStore struct {
	core   *minio.Core
	bucket string
}

// NewMinioStore connects to the configured endpoint using path-style
// addressing and signature v4.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", cfg.Endpoint)
	}
	secure := u.Scheme == "https"

	transport, err := buildTransport(secure, cfg.VerifyTLS, cfg.RootCAPath)
	if err != nil {
		return nil, err
	}

	core, err := minio.NewCore(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		Transport:    transport,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioStore{core: core, bucket: cfg.Bucket}, nil
}

// buildTransport returns a transport honoring the TLS verification settings,
// or nil to use the client default.
func buildTransport(secure, verify bool, caPath string) (http.RoundTripper, error) {
	if !secure {
		return nil, nil
	}
	if verify && caPath == "" {
		return nil, nil
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if !verify {
		tlsCfg.InsecureSkipVerify = true
	} else {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %q contains no valid certificates", caPath)
		}
		tlsCfg.RootCAs = pool
	}

	return &http.Transport{TLSClientConfig: tlsCfg}, nil
}

// Head reports existence and size via StatObject.
func (s *MinioStore) Head(ctx context.Context, key string) (int64, bool, error) {
	info, err := s.core.Client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, translate(err)
	}
	return info.Size, true, nil
}

// List returns every object key under prefix.
func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for object := range s.core.Client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, translate(object.Err)
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

// Get opens a (possibly ranged) read stream for the object at key.
func (s *MinioStore) Get(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if length > 0 {
		if err := opts.SetRange(offset, offset+length-1); err != nil {
			return nil, fmt.Errorf("set range: %w", err)
		}
	} else if offset > 0 {
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, fmt.Errorf("set range: %w", err)
		}
	}

	obj, err := s.core.Client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, translate(err)
	}
	// GetObject is lazy; surface missing objects now rather than on first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translate(err)
	}
	return obj, nil
}

// Put stores a single object of known size.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.core.Client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return translate(err)
}

// Delete removes the object at key.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	err := s.core.Client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return translate(err)
	}
	return nil
}

// InitiateMultipart starts a multipart session for key.
func (s *MinioStore) InitiateMultipart(ctx context.Context, key string) (string, error) {
	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", translate(err)
	}
	return uploadID, nil
}

// UploadPart uploads one part of a multipart session.
func (s *MinioStore) UploadPart(ctx context.Context, key, uploadID string, number int, r io.Reader, size int64) (Part, error) {
	part, err := s.core.PutObjectPart(ctx, s.bucket, key, uploadID, number, r, size, minio.PutObjectPartOptions{})
	if err != nil {
		return Part{}, translate(err)
	}
	return Part{Number: part.PartNumber, ETag: part.ETag}, nil
}

// CompleteMultipart finalizes a session with parts ordered by index.
func (s *MinioStore) CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) error {
	complete := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		complete[i] = minio.CompletePart{PartNumber: p.Number, ETag: p.ETag}
	}
	_, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, uploadID, complete, minio.PutObjectOptions{})
	return translate(err)
}

// AbortMultipart discards a session and its server-side reservation.
func (s *MinioStore) AbortMultipart(ctx context.Context, key, uploadID string) error {
	return translate(s.core.AbortMultipartUpload(ctx, s.bucket, key, uploadID))
}

// isNotFound reports whether err is a missing-key or missing-bucket response.
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound
}

// translate converts MinIO errors to stdlib fs errors where a sentinel
// exists, wrapping everything else with backend context.
func translate(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s", fs.ErrNotExist, resp.Key)
	case "AccessDenied":
		return fmt.Errorf("%w: %s", fs.ErrPermission, resp.Key)
	}
	return fmt.Errorf("objectstore: %w", err)
}

// Compile-time interface check.
var _ Client = (*MinioStore)(nil)
