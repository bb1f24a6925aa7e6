/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides rate limiting of inbound requests that is applied before admission.
// Requests exceeding the rate are rejected immediately with the time after which they may be retried.
//
// Two algorithms are supported:
//   - leaky bucket (GCRA), allowing configurable bursts;
//   - sliding window.
//
// Limits may be global or per key (e.g. client IP). Per-key state is kept in an LRU store of bounded size.
package ratelimit
