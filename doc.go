// Package modelcache reconciles machine learning model artifacts across
// three storage tiers: a local disk cache, an S3-compatible object store,
// and the origin model hub.
//
// Resolution always consults the cheapest tier first. A valid local entry
// is returned immediately; otherwise the object store is checked and the
// artifact downloaded; only when both caches miss is the origin hub
// contacted, after which the artifact is written through to both cache
// tiers so subsequent hosts promote from the object store instead.
//
//	cache, err := modelcache.New(modelcache.Config{
//		Bucket:    "ml-models",
//		Endpoint:  "https://s3.example.com",
//		AccessKey: os.Getenv("S3_ACCESS_KEY_ID"),
//		SecretKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
//	})
//	if err != nil {
//		return err
//	}
//	path, err := cache.GetOrDownload(ctx, "acme/bert-base")
//
// Artifacts are stored either as a single tar.gz archive per model (the
// default) or as a mirrored file tree, controlled by Config.StoreAsArchive.
// Large objects transfer as concurrent multipart chunks with bounded
// parallelism and per-part retry.
package modelcache
