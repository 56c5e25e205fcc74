// Package confluence fetches pages from the Confluence Cloud REST API and
// parses the webhook payloads Confluence sends when a page changes.
//
// A Client satisfies ingestion.DocumentSource. Requests use basic auth with a
// username and API token and are throttled by a token bucket so a burst of
// webhook events cannot exhaust the site's rate limit.
package confluence
