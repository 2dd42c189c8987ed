/*
Package httpserver implements the HTTP server for the one-time secret
sharing service.

It exposes the secret lifecycle as a small JSON API. Clients seal secrets
locally into opaque envelopes before uploading; the server stores them
keyed by claim hash and destroys each record on the first valid claim,
on owner burn, or on expiry. The server never holds plaintext, URL keys
or claim tokens.

# API Endpoints

  - POST /api/public/secrets - Store a sealed secret anonymously
  - POST /api/public/secrets/{id}/claim - Claim a secret exactly once
  - POST /api/authed/secrets - Store a sealed secret with an API key
  - POST /api/authed/secrets/{id}/burn - Destroy an owned secret unclaimed
  - GET /livez - Liveness check
  - GET /readyz - Readiness check (includes storage availability)
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

# Request Admission

Mutating endpoints pass a per-scope token-bucket rate limiter (scoped to
client IP or API key prefix) and, for creates, per-owner quota checks on
active secret count and bytes. Rejections map to uniform status codes:

  - 400 - malformed request shape or envelope
  - 401 - missing, unknown, revoked or mismatched API key
  - 404 - secret absent, expired, already claimed, wrong token or owner
  - 413 - envelope would exceed the owner's byte quota
  - 429 - rate limited or at the active-secret-count quota

The 404 and 401 causes are deliberately unified so callers cannot probe
record state or credential validity.

# Lifecycle

A Server owns two listeners: the API listener and a Prometheus metrics
listener on a separate address. Readiness is toggled through the drain
endpoints for zero-downtime deploys, and Shutdown drains both listeners
gracefully.
*/
package httpserver
