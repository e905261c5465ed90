// Package api hosts the operator HTTP surface. Notable routes:
//   - GET /healthz and /readyz for probes; readiness follows the IRC session.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/jobs and /v1/jobs/{job_id} for read-only job snapshots.
package api
