/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

// Request id headers.
const (
	HeaderRequestID         = "X-Request-ID"
	HeaderInternalRequestID = "X-Int-Request-ID"
)

// RequestIDOpts represents an options for RequestID middleware.
type RequestIDOpts struct {
	GenerateID         func() string
	GenerateInternalID func() string
}

type requestIDHandler struct {
	next http.Handler
	opts RequestIDOpts
}

func newID() string {
	return xid.New().String()
}

// RequestID is a middleware that takes the external request id from the X-Request-ID header
// (or generates a new one) and always generates an internal one.
// Both are put into the request context and returned in the X-Request-ID and X-Int-Request-ID response headers.
// The external id is also propagated to the inference backend by the backend client.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{})
}

// RequestIDWithOpts is a more configurable version of RequestID middleware.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	if opts.GenerateID == nil {
		opts.GenerateID = newID
	}
	if opts.GenerateInternalID == nil {
		opts.GenerateInternalID = newID
	}
	return func(next http.Handler) http.Handler {
		return &requestIDHandler{next: next, opts: opts}
	}
}

func (h *requestIDHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = h.opts.GenerateID()
	}
	internalRequestID := h.opts.GenerateInternalID()

	rw.Header().Set(HeaderRequestID, requestID)
	rw.Header().Set(HeaderInternalRequestID, internalRequestID)

	ctx := NewContextWithInternalRequestID(NewContextWithRequestID(r.Context(), requestID), internalRequestID)
	h.next.ServeHTTP(rw, r.WithContext(ctx))
}
