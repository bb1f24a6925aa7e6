/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"time"

	"github.com/rs/cors"
)

// CORSOpts represents an options for CORS middleware.
type CORSOpts struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// CORS is a middleware that handles cross-origin requests (including preflight ones)
// so browser-based chat clients may talk to the gateway directly.
func CORS(opts CORSOpts) func(next http.Handler) http.Handler {
	if len(opts.ExposedHeaders) == 0 {
		opts.ExposedHeaders = []string{HeaderRequestID, HeaderInternalRequestID}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   opts.AllowedMethods,
		AllowedHeaders:   opts.AllowedHeaders,
		ExposedHeaders:   opts.ExposedHeaders,
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           int(opts.MaxAge.Seconds()),
	})
	return c.Handler
}
