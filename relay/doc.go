/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package relay provides HTTP handlers that forward OpenAI-style inference requests to the backend.
// Generation requests pass through an admission gate that bounds how many of them reach the backend
// concurrently. Streaming responses are relayed chunk by chunk, and a client disconnect aborts
// the backend call.
package relay
