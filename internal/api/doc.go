// Package api is the JSON/SSE HTTP surface for the AI subsystem.
//
// Endpoints:
//   - POST /api/v1/proofread/stream — SSE stream of proofread tokens
//   - POST /api/v1/search           — retrieval-augmented content search
//   - GET  /healthz                 — liveness probe
//   - GET  /readyz                  — readiness probe (database ping)
//
// File structure:
//   - server.go: route registration, middleware stack, server lifecycle
//   - middleware.go: recovery and request logging
//   - ratelimit.go: per-IP token-bucket limiting
//   - proofread.go: SSE streaming handler
//   - search.go: RAG query handler
//   - health.go: probes
//   - response.go: JSON response helpers
package api
