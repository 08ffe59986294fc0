// Package api provides the REST client for the Sokin market-data
// backend.
//
// Every response body is wrapped in a {success, data, error} envelope;
// success=false is surfaced as *APIError. Read operations consult the
// shared TTL cache before going to the network, and concurrent misses
// for the same key are collapsed into a single fetch.
//
// Retry policy: HTTP 429 honors the server-suggested wait and retries
// up to the cap; transport failures retry with exponential backoff;
// any other non-2xx status fails immediately.
package api
