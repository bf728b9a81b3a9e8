// Package api hosts the HTTP server, middleware, and REST handlers.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/analyze, /api/analyze/rerun, /api/analyze/start and
//     /api/analyze/stop to submit and steer jobs.
//   - GET /api/analyses, GET and DELETE /api/analyses/{id} to read and
//     remove them.
//
// Everything under /api requires "Authorization: Bearer <token>".
package api
