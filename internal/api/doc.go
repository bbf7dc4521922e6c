// Package api hosts the HTTP server, middleware stack and JSON handlers of
// Bathroom Buddy. Notable routes:
//   - GET /healthz / readyz for probes; readyz pings the repository.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/signup, /v1/login, /v1/logout and /v1/users/me for accounts.
//   - GET /v1/search?q= runs the restroom search and stores what it finds.
//   - /v1/restrooms/{place_id} plus its favorite and blacklist actions.
//   - GET /v1/users/{user_id}/favorites lists a user's favorites.
package api
