// Package api hosts the HTTP server and REST handlers of the model catalog.
// Notable routes:
//   - GET /model/{model_id}, /models, /search and POST /models/batch for model rows.
//   - GET /hardware, /hardware/types and /hardware/manufacturers for accelerators.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
