// Package cache provides a Redis-backed response cache for Spotify Web API
// GET requests.
//
// Catalogue data (albums, track listings) rarely changes during a harvest, so
// a restarted run can answer repeated requests from Redis instead of spending
// request budget on them again.
//
// Bodies are stored as returned by the API, one Redis key per request:
//
//	collabgraph:<market>:<endpoint>:<sorted query>
//
// The market is the manager namespace, so a run switching markets never reads
// another market's listings.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, "US")
//	key := cache.NewKey("/albums/4aawyAB9vmqN3uQ7FjRGTy/tracks", query)
//
//	page, err := cache.GetJSON[client.Paging[client.SimplifiedTrack]](ctx, manager, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then
//		err = manager.StoreResponse(ctx, key, resp.Header, body, 24*time.Hour)
//	}
//
// The lifetime comes from a positive Cache-Control max-age, then a future
// Expires, then the fallback TTL. Responses marked no-store are never cached.
//
// # Metrics
//
//   - collab_cache_hits_total{layer="redis"}
//   - collab_cache_misses_total
//   - collab_cache_size_bytes{layer="redis"}
//   - collab_cache_errors_total{operation} (get, set, delete, decode)
package cache
