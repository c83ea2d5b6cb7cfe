// Package gateway orchestrates the parley server components.
//
// # Overview
//
// The gateway owns the store, the presence table, the snapshot broadcaster and
// the session manager, and exposes them over three surfaces:
//
//   - WebSocket sessions on server.ws_path (default /ws)
//   - a read-only HTTP API and health probes on the same listener
//   - the standard grpc.health.v1 service on server.grpc_addr
//
// # HTTP API
//
//	GET /health                              liveness, always "OK"
//	GET /health/ready                        store ping; "ready (N online)" or 503
//	GET /api/users                           {"all": [...], "online": [...]}
//	GET /api/conversations?identity=X        conversations X takes part in
//	GET /api/conversations/transcript?a=&b=  HTML transcript, Markdown rendered
//
// The API never mutates state; messages only enter through sessions.
//
// # Listeners
//
// With tailscale.enabled the gateway joins the tailnet through tsnet and
// listens on :80 (HTTP) and :50051 (gRPC) there instead of the configured
// TCP addresses.
//
// # Lifecycle
//
// Run blocks until its context is canceled. Every session runs under a context
// derived from Run's, so shutdown ends sessions through their normal teardown;
// Shutdown waits for those teardowns before closing the store.
package gateway
