/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/acronis/inference-gateway/log"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// LoggingOpts represents an options for Logging middleware.
type LoggingOpts struct {
	RequestStart         bool
	RequestHeaders       map[string]string
	ExcludedEndpoints    []string
	SlowRequestThreshold time.Duration // controls when to include "time_slots" field group into final log message
}

type loggingHandler struct {
	next   http.Handler
	logger log.FieldLogger
	opts   LoggingOpts
}

// Logging is a middleware that logs info about HTTP request and response.
// Also, it puts logger (with external and internal request's ids in fields) into request's context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a more configurable version of Logging middleware.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	if opts.SlowRequestThreshold == 0 {
		opts.SlowRequestThreshold = time.Second
	}
	return func(next http.Handler) http.Handler {
		return &loggingHandler{next: next, logger: logger, opts: opts}
	}
}

func (h *loggingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	startTime := GetRequestStartTimeFromContext(ctx)
	if startTime.IsZero() {
		startTime = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, startTime)
	}

	loggerForNext := h.logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)

	logFields := make([]log.Field, 0, 8)
	logFields = append(logFields,
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String("user_agent", r.UserAgent()),
	)
	if addrIP, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		logFields = append(logFields, log.String("remote_addr_ip", addrIP))
	}
	if originAddr := GetOriginAddr(r); originAddr != "" {
		logFields = append(logFields, log.String("origin_addr", originAddr))
	}
	for reqHeaderName, logKey := range h.opts.RequestHeaders {
		logFields = append(logFields, log.String(logKey, r.Header.Get(reqHeaderName)))
	}
	logger := loggerForNext.With(logFields...)

	noLog := isLoggingDisabled(r.URL.Path, h.opts.ExcludedEndpoints)
	if h.opts.RequestStart && !noLog {
		logger.Info("request started")
	}

	lp := &LoggingParams{}
	r = r.WithContext(NewContextWithLoggingParams(NewContextWithLogger(ctx, loggerForNext), lp))
	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	h.next.ServeHTTP(wrw, r)

	if noLog && wrw.Status() < http.StatusBadRequest {
		return
	}
	duration := time.Since(startTime)
	fields := append([]log.Field{
		log.Int64("duration_ms", duration.Milliseconds()),
		log.Int("status", wrw.Status()),
		log.Int("bytes_sent", wrw.BytesWritten()),
	}, lp.snapshot(duration >= h.opts.SlowRequestThreshold)...)
	logger.Info(fmt.Sprintf("response completed in %.3fs", duration.Seconds()), fields...)
}

func isLoggingDisabled(urlPath string, noLogEndpoints []string) bool {
	for _, endpoint := range noLogEndpoints {
		if urlPath == endpoint {
			return true
		}
	}
	return false
}

// GetOriginAddr returns the address of the client that originated the request
// according to X-Forwarded-For and X-Real-IP headers. Empty string is returned if both are missing.
func GetOriginAddr(r *http.Request) string {
	if forwardFor := r.Header.Get(headerForwardedFor); forwardFor != "" {
		if first := strings.IndexByte(forwardFor, ','); first != -1 {
			forwardFor = forwardFor[:first]
		}
		return strings.TrimSpace(forwardFor)
	}
	if realIP := r.Header.Get(headerRealIP); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return ""
}
