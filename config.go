package modelcache

import "time"

// Default configuration values.
const (
	// DefaultRegion is the object-store region used when none is set.
	DefaultRegion = "us-east-1"

	// DefaultPrefix namespaces all artifacts within the bucket.
	DefaultPrefix = "models/"

	// DefaultCacheDir is the local cache root used when none is set.
	DefaultCacheDir = "./model_cache"

	// DefaultChunkSize is the multipart part size.
	DefaultChunkSize = 64 * 1024 * 1024
)

// Config holds the immutable configuration a Cache is constructed with.
// Bucket, prefix, cache dir, and representation participate in key
// derivation and must not change for existing entries without migration.
type Config struct {
	// Bucket is the target object-store container. Required.
	Bucket string

	// Endpoint is the object-store base URL including scheme; the scheme
	// (http/https) determines TLS use. Required.
	Endpoint string

	// AccessKey and SecretKey are the object-store credentials. Required.
	AccessKey string
	SecretKey string

	// Region is the object-store region. Defaults to DefaultRegion.
	Region string

	// Prefix namespaces all artifacts within the bucket. Defaults to
	// DefaultPrefix; normalized to carry a single trailing slash.
	Prefix string

	// SkipTLSVerify disables object-store certificate validation.
	SkipTLSVerify bool

	// RootCAPath optionally points to a PEM bundle used instead of the
	// system trust store when verification is enabled.
	RootCAPath string

	// StoreAsArchive selects the ARCHIVE representation (one tar.gz per
	// model) when true, the expanded TREE representation when false.
	StoreAsArchive bool

	// CacheDir is the local cache root. Defaults to DefaultCacheDir.
	CacheDir string

	// ChunkSize is the multipart part size in bytes. Defaults to
	// DefaultChunkSize.
	ChunkSize int64

	// MultipartThreshold is the payload size at which uploads switch to
	// multipart. Defaults to ChunkSize.
	MultipartThreshold int64

	// MaxParallelParts bounds concurrent part transfers. Defaults to 4.
	MaxParallelParts int

	// PartRetries is the per-part retry budget after the first attempt.
	// Defaults to 3.
	PartRetries uint64

	// OpTimeout bounds each individual object-store operation, including
	// one part upload or download. Zero means no per-operation bound.
	OpTimeout time.Duration

	// HubToken is forwarded to the origin hub for private artifacts.
	HubToken string

	// HubEndpoint overrides the origin hub base URL.
	HubEndpoint string
}

// validate checks that all required connection fields are present.
// Credentials may be omitted only when an object store is injected.
func (c *Config) validate(haveStore bool) error {
	if haveStore {
		return nil
	}
	if c.Bucket == "" {
		return &ConfigurationError{Field: "bucket", Reason: "is required"}
	}
	if c.Endpoint == "" {
		return &ConfigurationError{Field: "endpoint", Reason: "is required when no store client is provided"}
	}
	if c.AccessKey == "" {
		return &ConfigurationError{Field: "access key", Reason: "is required when no store client is provided"}
	}
	if c.SecretKey == "" {
		return &ConfigurationError{Field: "secret key", Reason: "is required when no store client is provided"}
	}
	return nil
}

// withDefaults returns a copy with defaults applied to unset fields.
func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MultipartThreshold <= 0 {
		c.MultipartThreshold = c.ChunkSize
	}
	return c
}
