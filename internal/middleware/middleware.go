// Package middleware holds the Echo middleware of the API: request ids,
// Clerk authentication, request-scoped logging, New Relic tracing, tenant
// resolution, silo routing and rate limiting.
package middleware
