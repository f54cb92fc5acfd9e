// Package api implements the HTTP REST API for the assetscore server.
//
// New(engine, store, opts) returns a Handler that serves:
//
//	POST /api/v1/score          score one asset, store and return the result
//	POST /api/v1/score/batch    score a list of assets concurrently
//	GET  /api/v1/assets         latest live score of every asset
//	GET  /api/v1/assets/{id}    latest score of one asset; 404 if unknown or stale
//	GET  /api/v1/alerts         firing and recently resolved score alerts
//	GET  /api/v1/policy         summary of the active scoring policy
//	GET  /api/v1/health         average score and per-state counts
//	GET  /api/v1/snapshot       full JSON dump: all live assets + generated_at
//	GET  /metrics               Prometheus text exposition of the latest scores
//
// JSON endpoints respond with Content-Type: application/json and report
// errors as {"error": "..."}. Malformed input is a 400; wrong methods are a
// 405. Routing uses gorilla/mux; JSON types are defined in types.go.
//
// When Options.Auth.Mode is "apikey" every route except /api/v1/health
// requires the configured header to carry the key.
package api
