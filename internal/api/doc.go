// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

/*
Package api implements the admin HTTP surface.

Routes:

	GET  /health/live                 liveness probe
	GET  /health/ready                readiness probe
	GET  /metrics                     prometheus exposition

	GET    /api/v1/blocks             live IP blocks
	DELETE /api/v1/blocks/{subject}   manual unblock
	GET    /api/v1/locks              live account locks
	DELETE /api/v1/locks/{subject}    manual unlock
	GET    /api/v1/detectors          detector states
	PUT    /api/v1/detectors/{type}   reconfigure or toggle a detector
	GET    /api/v1/scoring/weights    live scoring weights
	PUT    /api/v1/scoring/weights    replace scoring weights
	GET    /api/v1/policy/limits      adaptive rate limit table
	PUT    /api/v1/policy/limits      replace the table
	GET    /api/v1/identities/{key}   remediation state + recent history
	GET    /api/v1/stats              pipeline runtime statistics
	GET    /api/v1/audit/...          audit query, stats, export
	GET    /api/v1/ws/alerts          websocket alert stream

Everything under /api/v1 requires the configured admin bearer token;
an empty token disables the admin surface. All mutations are written
to the audit trail with the acting administrator, taken from the
optional X-Admin-User header.

Responses use a uniform envelope (APIResponse) carrying the payload,
error details, request ID and timing metadata.
*/
package api
