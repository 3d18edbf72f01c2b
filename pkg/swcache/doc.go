// Package swcache is an offline cache that behaves like the site's service
// worker, expressed as an http.RoundTripper.
//
// A Controller goes through the worker lifecycle:
//
//	ctrl := swcache.New(origin, swcache.WithTransport(http.DefaultTransport))
//	if err := ctrl.Install(ctx); err != nil { ... } // precache the manifest
//	if err := ctrl.Activate(ctx); err != nil { ... } // evict other generations
//	client := &http.Client{Transport: ctrl}
//
// Once active, same-origin GET requests are served cache-first. Misses go to
// the network and successful same-origin responses are written back to the
// current cache. When the network fails, requests that accept HTML get the
// cached shell page instead. Cross-origin requests pass straight through.
//
// Caches are named by the manifest version. Activate deletes every cache
// whose name differs from the current version; there is no other eviction.
package swcache
