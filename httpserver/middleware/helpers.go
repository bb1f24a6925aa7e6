/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// WrapResponseWriter is a proxy around http.ResponseWriter that tracks the status code
// and the number of bytes written. It keeps http.Flusher support of the underlying writer.
type WrapResponseWriter = chimw.WrapResponseWriter

// WrapResponseWriterIfNeeded wraps an http.ResponseWriter if it is not already wrapped.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	if wrw, ok := rw.(WrapResponseWriter); ok {
		return wrw
	}
	return chimw.NewWrapResponseWriter(rw, protoMajor)
}
