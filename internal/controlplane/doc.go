// Package controlplane is a JSON REST client for the provisioning backend.
//
// Client implements cluster.Provisioner on top of the /api/v2 endpoints for
// compute templates, application templates (cluster environments), builds
// and sessions (clusters). Responses wrap a single object in {"result": ...}
// and lists in {"results": [...]}. Transient failures (connection errors,
// 429 and 5xx) are retried by go-retryablehttp; anything else is returned as
// an *APIError. A 404 matches cluster.ErrNotFound, and a payload that cannot
// be decoded wraps ErrUnexpectedResponse.
package controlplane
