package modelcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Bucket:    "models",
		Endpoint:  "https://s3.example.com",
		AccessKey: "AKIA",
		SecretKey: "secret",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		haveStore bool
		wantField string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:      "missing bucket",
			mutate:    func(c *Config) { c.Bucket = "" },
			wantField: "bucket",
		},
		{
			name:      "missing endpoint",
			mutate:    func(c *Config) { c.Endpoint = "" },
			wantField: "endpoint",
		},
		{
			name:      "missing access key",
			mutate:    func(c *Config) { c.AccessKey = "" },
			wantField: "access key",
		},
		{
			name:      "missing secret key",
			mutate:    func(c *Config) { c.SecretKey = "" },
			wantField: "secret key",
		},
		{
			name:      "injected store skips credential checks",
			mutate:    func(c *Config) { *c = Config{} },
			haveStore: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.validate(tt.haveStore)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, DefaultRegion, cfg.Region)
	assert.Equal(t, DefaultPrefix, cfg.Prefix)
	assert.Equal(t, DefaultCacheDir, cfg.CacheDir)
	assert.Equal(t, int64(DefaultChunkSize), cfg.ChunkSize)
	assert.Equal(t, cfg.ChunkSize, cfg.MultipartThreshold)
}

func TestConfigWithDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Region:             "eu-west-1",
		Prefix:             "artifacts/",
		CacheDir:           "/var/cache/models",
		ChunkSize:          1 << 20,
		MultipartThreshold: 5 << 20,
	}.withDefaults()

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "artifacts/", cfg.Prefix)
	assert.Equal(t, "/var/cache/models", cfg.CacheDir)
	assert.Equal(t, int64(1<<20), cfg.ChunkSize)
	assert.Equal(t, int64(5<<20), cfg.MultipartThreshold)
}
