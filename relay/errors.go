/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import "errors"

// StatusClientClosedRequest is a non-standard status code that is recorded when a client goes away
// before the response is completed.
const StatusClientClosedRequest = 499

// Error kinds of the request outcomes. Use errors.Is to check them.
var (
	ErrBackendUnavailable = errors.New("backend is unavailable")
	ErrBackendError       = errors.New("backend responded with error")
	ErrClientDisconnected = errors.New("client disconnected")
	ErrInternal           = errors.New("internal error")
	ErrRateLimited        = errors.New("request rate limit exceeded")
	ErrQueueRejected      = errors.New("request rejected by admission queue")
)

// Error codes of the gateway-originated error responses.
const (
	ErrCodeBackendUnavailable = "backendUnavailable"
	ErrCodeQueueRejected      = "queueRejected"
)

// Error messages of the gateway-originated error responses.
const (
	ErrMessageBackendUnavailable = "Inference backend is unavailable."
	ErrMessageQueueRejected      = "Too many requests are waiting for the inference backend, please retry later."
)
