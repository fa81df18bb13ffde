package objectstore

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestStore starts a MinIO container and returns a store bound to a
// fresh bucket.
func setupTestStore(t *testing.T) *MinioStore {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	}

	minioC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start MinIO container")
	t.Cleanup(func() {
		_ = minioC.Terminate(ctx)
	})

	endpoint, err := minioC.Endpoint(ctx, "")
	require.NoError(t, err, "failed to get container endpoint")

	admin, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err, "failed to create admin client")

	const bucket = "test-bucket"
	require.NoError(t, admin.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}), "failed to create test bucket")

	store, err := NewMinioStore(MinioConfig{
		Endpoint:  "http://" + endpoint,
		Bucket:    bucket,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	})
	require.NoError(t, err, "failed to create store")

	return store
}

func TestIntegration_ObjectLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	payload := []byte("hello from minio")
	require.NoError(t, store.Put(ctx, "models/demo.tar.gz", bytes.NewReader(payload), int64(len(payload))))

	size, exists, err := store.Head(ctx, "models/demo.tar.gz")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(len(payload)), size)

	t.Run("full get", func(t *testing.T) {
		rc, err := store.Get(ctx, "models/demo.tar.gz", 0, 0)
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("ranged get", func(t *testing.T) {
		rc, err := store.Get(ctx, "models/demo.tar.gz", 6, 4)
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, []byte("from"), data)
	})

	t.Run("list", func(t *testing.T) {
		keys, err := store.List(ctx, "models/")
		require.NoError(t, err)
		assert.Equal(t, []string{"models/demo.tar.gz"}, keys)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "models/demo.tar.gz"))
		_, exists, err := store.Head(ctx, "models/demo.tar.gz")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestIntegration_GetMissingObject(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Get(context.Background(), "models/absent.tar.gz", 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestIntegration_MultipartLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Non-final parts must be at least 5 MiB per the S3 protocol.
	part1 := bytes.Repeat([]byte{'a'}, 5*1024*1024)
	part2 := bytes.Repeat([]byte{'b'}, 1024)

	uploadID, err := store.InitiateMultipart(ctx, "models/big.tar.gz")
	require.NoError(t, err)

	p1, err := store.UploadPart(ctx, "models/big.tar.gz", uploadID, 1, bytes.NewReader(part1), int64(len(part1)))
	require.NoError(t, err)
	p2, err := store.UploadPart(ctx, "models/big.tar.gz", uploadID, 2, bytes.NewReader(part2), int64(len(part2)))
	require.NoError(t, err)

	require.NoError(t, store.CompleteMultipart(ctx, "models/big.tar.gz", uploadID, []Part{p1, p2}))

	size, exists, err := store.Head(ctx, "models/big.tar.gz")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(len(part1)+len(part2)), size)

	rc, err := store.Get(ctx, "models/big.tar.gz", int64(len(part1)), 8)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'b'}, 8), data)
}

func TestIntegration_MultipartAbort(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	uploadID, err := store.InitiateMultipart(ctx, "models/aborted.tar.gz")
	require.NoError(t, err)

	part := bytes.Repeat([]byte{'x'}, 1024)
	_, err = store.UploadPart(ctx, "models/aborted.tar.gz", uploadID, 1, bytes.NewReader(part), int64(len(part)))
	require.NoError(t, err)

	require.NoError(t, store.AbortMultipart(ctx, "models/aborted.tar.gz", uploadID))

	_, exists, err := store.Head(ctx, "models/aborted.tar.gz")
	require.NoError(t, err)
	assert.False(t, exists, "aborted upload must leave no visible object")
}
