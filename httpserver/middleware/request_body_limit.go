/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/acronis/inference-gateway/restapi"
)

type requestBodyLimitHandler struct {
	next         http.Handler
	maxSizeBytes uint64
	errorDomain  string
}

// RequestBodyLimit is a middleware that sets the maximum allowed size for a request body.
// Requests with too large Content-Length are rejected with 413 immediately,
// otherwise reading beyond the limit fails with *http.MaxBytesError.
func RequestBodyLimit(maxSizeBytes uint64, errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &requestBodyLimitHandler{next, maxSizeBytes, errDomain}
	}
}

func (h *requestBodyLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if h.maxSizeBytes == 0 {
		h.next.ServeHTTP(rw, r)
		return
	}
	if r.ContentLength > int64(h.maxSizeBytes) { //nolint:gosec // maxSizeBytes is a reasonable value
		apiErr := restapi.NewError(h.errorDomain, restapi.ErrCodeRequestTooLarge, restapi.ErrMessageRequestTooLarge)
		restapi.RespondError(rw, http.StatusRequestEntityTooLarge, apiErr, GetLoggerFromContext(r.Context()))
		return
	}
	r.Body = http.MaxBytesReader(rw, r.Body, int64(h.maxSizeBytes)) //nolint:gosec
	h.next.ServeHTTP(rw, r)
}
