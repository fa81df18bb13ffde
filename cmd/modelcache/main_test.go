package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("S3_BUCKET", "ml-models")
	t.Setenv("S3_ENDPOINT", "https://s3.example.com")
	t.Setenv("S3_ACCESS_KEY_ID", "AKIA")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("S3_REGION", "eu-west-1")
	t.Setenv("S3_PREFIX", "artifacts/")
	t.Setenv("S3_VERIFY_SSL", "false")
	t.Setenv("S3_STORE_AS_ARCHIVE", "false")
	t.Setenv("S3_MULTIPART_CHUNK_SIZE", "100MiB")
	t.Setenv("S3_MAX_PARALLEL_PARTS", "8")
	t.Setenv("S3_OP_TIMEOUT", "90s")
	t.Setenv("MODEL_CACHE_DIR", "/var/cache/models")

	cfg, err := configFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "ml-models", cfg.Bucket)
	assert.Equal(t, "https://s3.example.com", cfg.Endpoint)
	assert.Equal(t, "AKIA", cfg.AccessKey)
	assert.Equal(t, "secret", cfg.SecretKey)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "artifacts/", cfg.Prefix)
	assert.True(t, cfg.SkipTLSVerify)
	assert.False(t, cfg.StoreAsArchive)
	assert.Equal(t, int64(100*1024*1024), cfg.ChunkSize)
	assert.Equal(t, 8, cfg.MaxParallelParts)
	assert.Equal(t, 90*time.Second, cfg.OpTimeout)
	assert.Equal(t, "/var/cache/models", cfg.CacheDir)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"S3_BUCKET", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
		"S3_REGION", "S3_PREFIX", "S3_VERIFY_SSL", "S3_STORE_AS_ARCHIVE",
		"S3_MULTIPART_CHUNK_SIZE", "S3_MAX_PARALLEL_PARTS", "S3_OP_TIMEOUT",
		"MODEL_CACHE_DIR",
	} {
		t.Setenv(key, "")
	}

	cfg, err := configFromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.StoreAsArchive, "archive storage is the default representation")
	assert.False(t, cfg.SkipTLSVerify)
	assert.Zero(t, cfg.ChunkSize, "unset chunk size defers to the library default")
}

func TestConfigFromEnvRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad verify flag", key: "S3_VERIFY_SSL", value: "maybe"},
		{name: "bad archive flag", key: "S3_STORE_AS_ARCHIVE", value: "sometimes"},
		{name: "bad chunk size", key: "S3_MULTIPART_CHUNK_SIZE", value: "huge"},
		{name: "bad parallel parts", key: "S3_MAX_PARALLEL_PARTS", value: "many"},
		{name: "bad timeout", key: "S3_OP_TIMEOUT", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := configFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
