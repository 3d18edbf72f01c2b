// Package kv provides the key/value persistence used by the homepage client.
//
// A Backend stores raw bytes under string keys. Several implementations are
// provided:
//
//	backend := kv.NewMemoryBackend()
//	// or
//	backend := kv.NewSQLBackend(db, kv.WithSQLDialect(kv.DialectSQLite))
//	// or
//	backend := kv.NewRedisBackend(redisClient)
//	// or
//	backend := kv.NewS3Backend(s3Client, "bucket")
//
// Storage wraps a Backend with the contract the state store relies on: values
// are JSON documents, and failures are logged instead of returned, so callers
// can always continue with in-memory state.
//
//	storage := kv.NewStorage(backend)
//	storage.Set(ctx, "appState", snapshot)
//	ok := storage.Get(ctx, "appState", &snapshot)
//
// Cookies is the origin-scoped cookie store. Its jar is meant to be shared
// with the HTTP client talking to the same origin.
package kv
