/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package backend provides an HTTP client for the OpenAI-compatible inference backend.
// It supports buffered calls (Client.Do), streaming calls (Client.Stream) whose body is read
// lazily chunk by chunk, and health probing (Client.Ping, HealthProber).
package backend
