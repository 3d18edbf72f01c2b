// Package server is the homepage dev server: an offline-capable caching
// proxy in front of the site, plus control endpoints for the cache
// controller and the state store.
//
// Routes:
//
//	GET    /metrics        Prometheus metrics
//	GET    /_events        websocket stream of bus events and notifications
//	GET    /_state         current state, or one dot path with ?path=
//	PATCH  /_state         merge a state patch
//	DELETE /_state         reset state
//	GET    /_sw/status     lifecycle state, manifest and active version
//	GET    /_sw/caches     cache inventory
//	POST   /_sw/install    install the registered manifest
//	POST   /_sw/activate   activate the installed manifest
//	POST   /_sw/reinstall  rehash assets and install+activate if changed
//	POST   /_sw/push       deliver a push message
//	POST   /_sw/click      click a notification
//	*                      proxied to the origin through the cache controller
package server
