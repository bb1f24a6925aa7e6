/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/inference-gateway/admission"
	"github.com/acronis/inference-gateway/backend"
	"github.com/acronis/inference-gateway/httpserver/middleware"
	"github.com/acronis/inference-gateway/internal/ratelimit"
	"github.com/acronis/inference-gateway/log"
	"github.com/acronis/inference-gateway/restapi"
)

// Relayed endpoints. They are also used as the "endpoint" label of metrics.
const (
	EndpointModels          = "/v1/models"
	EndpointChatCompletions = "/v1/chat/completions"
)

// DefaultErrorDomain is used in the bodies of the gateway-originated errors.
const DefaultErrorDomain = "InferenceGateway"

const (
	headerContentType      = "Content-Type"
	headerCacheControl     = "Cache-Control"
	headerAccelBuffering   = "X-Accel-Buffering"
	headerRetryAfter       = "Retry-After"
	contentTypeEventStream = "text/event-stream"
)

// BackendCaller performs calls to the inference backend.
// *backend.Client implements it.
type BackendCaller interface {
	Do(ctx context.Context, method, path string, body []byte) (*backend.Response, error)
	Stream(ctx context.Context, method, path string, body []byte) (*backend.Stream, error)
}

var _ BackendCaller = (*backend.Client)(nil)

// Opts represents options for the Relay.
type Opts struct {
	// Metrics is a collector of the relay metrics. DisabledMetrics is used by default.
	Metrics MetricsCollector

	// RateLimiter limits the rate of generation requests before they enter the admission queue.
	RateLimiter ratelimit.Limiter

	// RateLimitByClientIP makes RateLimiter count requests per client IP instead of globally.
	// The IP is the host part of the connection's remote address.
	RateLimitByClientIP bool

	// TrustForwardedHeaders makes the client IP for RateLimitByClientIP be taken from
	// X-Forwarded-For / X-Real-IP when present. Only safe behind a proxy that overwrites these headers.
	TrustForwardedHeaders bool

	// ErrorDomain is used in the bodies of the gateway-originated errors. DefaultErrorDomain is used by default.
	ErrorDomain string

	// RetryAfter is sent in the Retry-After header when the admission queue rejects a request.
	RetryAfter time.Duration
}

// Relay forwards requests to the inference backend and relays responses back to clients.
type Relay struct {
	backend             BackendCaller
	gate                *admission.Gate
	logger              log.FieldLogger
	metrics             MetricsCollector
	rateLimiter         ratelimit.Limiter
	rateLimitByClientIP bool
	trustForwarded      bool
	errDomain           string
	retryAfter          time.Duration
}

// New creates a new Relay. A nil gate means that the number of concurrent generation requests is unlimited.
func New(client BackendCaller, gate *admission.Gate, logger log.FieldLogger, opts Opts) *Relay {
	if opts.Metrics == nil {
		opts.Metrics = DisabledMetrics{}
	}
	if opts.ErrorDomain == "" {
		opts.ErrorDomain = DefaultErrorDomain
	}
	return &Relay{
		backend:             client,
		gate:                gate,
		logger:              logger,
		metrics:             opts.Metrics,
		rateLimiter:         opts.RateLimiter,
		rateLimitByClientIP: opts.RateLimitByClientIP,
		trustForwarded:      opts.TrustForwardedHeaders,
		errDomain:           opts.ErrorDomain,
		retryAfter:          opts.RetryAfter,
	}
}

// RegisterRoutes mounts the relay handlers to the router.
func (rl *Relay) RegisterRoutes(router chi.Router) {
	router.Get(EndpointModels, rl.ServeModels)
	router.Post(EndpointChatCompletions, rl.ServeChatCompletions)
}

// ServeModels forwards the models listing to the backend and passes its response through.
// It doesn't go through the admission gate.
func (rl *Relay) ServeModels(rw http.ResponseWriter, r *http.Request) {
	ex := rl.newExchange(rw, r, EndpointModels)
	defer ex.finish()

	resp, err := rl.backend.Do(context.WithoutCancel(r.Context()), http.MethodGet, EndpointModels, nil)
	ex.relayBuffered(resp, err)
}

// ServeChatCompletions forwards the chat completion request to the backend.
// The request body is sent as is. If it has "stream": true, the response is relayed as a token stream,
// otherwise the backend response is buffered and passed through.
func (rl *Relay) ServeChatCompletions(rw http.ResponseWriter, r *http.Request) {
	ex := rl.newExchange(rw, r, EndpointChatCompletions)
	defer ex.finish()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			ex.respondError(http.StatusRequestEntityTooLarge, restapi.NewError(
				rl.errDomain, restapi.ErrCodeRequestTooLarge, restapi.ErrMessageRequestTooLarge), err)
			return
		}
		ex.clientGone(fmt.Errorf("%w: read request body: %w", ErrClientDisconnected, err))
		return
	}
	ex.stream = isStreamRequested(body)

	if !ex.admit() {
		return
	}

	if ex.stream {
		ex.relayStream(body)
		return
	}
	// Non-streaming generation is not interrupted when the client goes away.
	resp, err := rl.backend.Do(context.WithoutCancel(r.Context()), http.MethodPost, EndpointChatCompletions, body)
	ex.relayBuffered(resp, err)
}

// isStreamRequested reports whether the body is a JSON object with the "stream" member equal to true.
// Bodies that are not valid JSON are treated as non-streaming requests.
func isStreamRequested(body []byte) bool {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(body, &members); err != nil {
		return false
	}
	return bytes.Equal(bytes.TrimSpace(members["stream"]), []byte("true"))
}

// exchange holds the state of a single relayed request. It's owned by the handler goroutine.
type exchange struct {
	relay       *Relay
	rw          http.ResponseWriter
	r           *http.Request
	logger      log.FieldLogger
	endpoint    string
	startTime   time.Time
	stream      bool
	status      int
	err         error
	queueWait   time.Duration
	ttft        time.Duration
	bytesSent   int64
	wroteHeader bool
	release     func()
}

func (rl *Relay) newExchange(rw http.ResponseWriter, r *http.Request, endpoint string) *exchange {
	startTime := middleware.GetRequestStartTimeFromContext(r.Context())
	if startTime.IsZero() {
		startTime = time.Now()
	}
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = rl.logger
	}
	rl.metrics.IncInFlight(endpoint)
	return &exchange{
		relay:     rl,
		rw:        rw,
		r:         r,
		logger:    logger,
		endpoint:  endpoint,
		startTime: startTime,
		status:    http.StatusInternalServerError,
	}
}

// finish must be deferred right after the exchange creation.
// It releases the admission slot and records the terminal observation of the request
// regardless of how the handler exits.
func (ex *exchange) finish() {
	if p := recover(); p != nil {
		if p == http.ErrAbortHandler {
			ex.err = fmt.Errorf("%w: request has been aborted", ErrInternal)
			ex.complete()
			panic(p)
		}
		ex.logger.Error(fmt.Sprintf("Panic: %+v", p), log.Bytes("stack", debug.Stack()))
		ex.respondError(http.StatusInternalServerError, restapi.NewInternalError(ex.relay.errDomain),
			fmt.Errorf("%w: panic: %v", ErrInternal, p))
	}
	ex.complete()
}

// complete runs once the terminal status is decided: the slot is released first, then the request is observed.
func (ex *exchange) complete() {
	if ex.release != nil {
		ex.release()
		ex.release = nil
	}
	duration := time.Since(ex.startTime)
	ex.relay.metrics.ObserveRequest(ex.endpoint, ex.r.Method, ex.status, ex.stream, duration)
	ex.relay.metrics.DecInFlight(ex.endpoint)

	fields := []log.Field{
		log.String("endpoint", ex.endpoint),
		log.Bool("stream", ex.stream),
		log.Millis("queue_wait_ms", ex.queueWait),
	}
	if ex.ttft > 0 {
		fields = append(fields, log.Millis("ttft_ms", ex.ttft))
	}
	if lp := middleware.GetLoggingParamsFromContext(ex.r.Context()); lp != nil {
		lp.ExtendFields(fields...)
	}

	fields = append(fields,
		log.Int("status", ex.status),
		log.Int64("bytes_sent", ex.bytesSent),
		log.Int64("duration_ms", duration.Milliseconds()),
	)
	switch {
	case ex.err == nil:
		ex.logger.Debug("request relayed", fields...)
	case errors.Is(ex.err, ErrBackendError), errors.Is(ex.err, ErrClientDisconnected):
		ex.logger.Info("request relayed: "+ex.err.Error(), fields...)
	default:
		ex.logger.Warn("request failed", append(fields, log.Error(ex.err))...)
	}
}

// admit passes the request through the rate limiter and the admission gate.
// An acquired slot is released by complete.
func (ex *exchange) admit() bool {
	rl := ex.relay
	ctx := ex.r.Context()

	if rl.rateLimiter != nil {
		allow, retryAfter, err := rl.rateLimiter.Allow(ctx, ex.rateLimitKey())
		if err != nil {
			ex.respondError(http.StatusInternalServerError, restapi.NewInternalError(rl.errDomain),
				fmt.Errorf("%w: rate limiter: %w", ErrInternal, err))
			return false
		}
		if !allow {
			setRetryAfter(ex.rw, retryAfter)
			ex.respondError(http.StatusTooManyRequests, restapi.NewError(
				rl.errDomain, restapi.ErrCodeTooManyRequests, restapi.ErrMessageTooManyRequests), ErrRateLimited)
			return false
		}
	}

	if rl.gate == nil {
		rl.metrics.ObserveQueueWait(ex.endpoint, 0)
		return true
	}

	wait, err := rl.gate.Acquire(ctx)
	ex.queueWait = wait
	rl.metrics.ObserveQueueWait(ex.endpoint, wait)
	if err != nil {
		if errors.Is(err, admission.ErrBacklogFull) || errors.Is(err, admission.ErrBacklogTimeout) {
			setRetryAfter(ex.rw, rl.retryAfter)
			ex.respondError(http.StatusServiceUnavailable, restapi.NewError(
				rl.errDomain, ErrCodeQueueRejected, ErrMessageQueueRejected), fmt.Errorf("%w: %w", ErrQueueRejected, err))
			return false
		}
		ex.clientGone(fmt.Errorf("%w: %w", ErrClientDisconnected, err))
		return false
	}
	ex.release = rl.gate.Release
	return true
}

func (ex *exchange) rateLimitKey() string {
	if !ex.relay.rateLimitByClientIP {
		return ""
	}
	if ex.relay.trustForwarded {
		if addr := middleware.GetOriginAddr(ex.r); addr != "" {
			return addr
		}
	}
	host, _, err := net.SplitHostPort(ex.r.RemoteAddr)
	if err != nil {
		return ex.r.RemoteAddr
	}
	return host
}

func (ex *exchange) relayBuffered(resp *backend.Response, err error) {
	if err != nil {
		ex.respondBackendUnavailable(err)
		return
	}
	ex.passthrough(resp.StatusCode, resp.Header, resp.Body)
}

func (ex *exchange) relayStream(body []byte) {
	ctx := ex.r.Context()

	stream, err := ex.relay.backend.Stream(ctx, http.MethodPost, EndpointChatCompletions, body)
	if err != nil {
		if statusErr, ok := backend.AsStatusError(err); ok {
			if statusErr.Truncated {
				ex.logger.Warn("backend error body is truncated",
					log.Int("backend_status", statusErr.StatusCode), log.Int("body_size", len(statusErr.Body)))
			}
			ex.passthrough(statusErr.StatusCode, statusErr.Header, statusErr.Body)
			return
		}
		if ctx.Err() != nil {
			ex.clientGone(fmt.Errorf("%w: %w", ErrClientDisconnected, ctx.Err()))
			return
		}
		ex.respondBackendUnavailable(err)
		return
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil && ctx.Err() == nil {
			ex.logger.Debug("backend stream closing failed", log.Error(closeErr))
		}
	}()

	header := ex.rw.Header()
	header.Set(headerContentType, contentTypeEventStream)
	header.Set(headerCacheControl, "no-cache")
	header.Set(headerAccelBuffering, "no")
	ex.writeHeader(http.StatusOK)

	rc := http.NewResponseController(ex.rw)
	if err = flush(rc); err != nil {
		ex.clientGone(fmt.Errorf("%w: flush headers: %w", ErrClientDisconnected, err))
		return
	}

	ttftObserved := false
	for {
		chunk, nextErr := stream.Next()
		if nextErr != nil {
			switch {
			case errors.Is(nextErr, io.EOF):
				ex.status = stream.StatusCode
			case ctx.Err() != nil:
				ex.clientGone(fmt.Errorf("%w: %w", ErrClientDisconnected, ctx.Err()))
			default:
				// Headers are already sent, the stream is just terminated.
				ex.status = http.StatusInternalServerError
				ex.err = fmt.Errorf("%w: %w", ErrBackendUnavailable, nextErr)
			}
			return
		}

		if ctx.Err() != nil {
			ex.clientGone(fmt.Errorf("%w: %w", ErrClientDisconnected, ctx.Err()))
			return
		}
		if len(chunk) == 0 {
			continue
		}

		n, writeErr := ex.rw.Write(chunk)
		ex.bytesSent += int64(n)
		if writeErr == nil {
			writeErr = flush(rc)
		}
		if writeErr != nil {
			ex.clientGone(fmt.Errorf("%w: write chunk: %w", ErrClientDisconnected, writeErr))
			return
		}

		if !ttftObserved {
			ttftObserved = true
			ex.ttft = time.Since(ex.startTime)
			ex.relay.metrics.ObserveTTFT(ex.endpoint, ex.ttft)
		}
	}
}

// passthrough writes the backend status, content type and body without any changes.
func (ex *exchange) passthrough(statusCode int, header http.Header, body []byte) {
	if contentType := header.Get(headerContentType); contentType != "" {
		ex.rw.Header().Set(headerContentType, contentType)
	}
	ex.writeHeader(statusCode)
	ex.status = statusCode
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		ex.err = fmt.Errorf("%w: status %d", ErrBackendError, statusCode)
	}
	n, err := ex.rw.Write(body)
	ex.bytesSent += int64(n)
	if err != nil {
		ex.logger.Debug("writing response body failed", log.Error(err))
	}
}

func (ex *exchange) respondBackendUnavailable(err error) {
	ex.logger.Error("inference backend call failed", log.Error(err))
	ex.respondError(http.StatusInternalServerError, restapi.NewError(
		ex.relay.errDomain, ErrCodeBackendUnavailable, ErrMessageBackendUnavailable),
		fmt.Errorf("%w: %w", ErrBackendUnavailable, err))
}

func (ex *exchange) respondError(statusCode int, apiErr *restapi.Error, err error) {
	ex.status = statusCode
	ex.err = err
	if ex.wroteHeader {
		return
	}
	ex.wroteHeader = true
	restapi.RespondError(ex.rw, statusCode, apiErr, ex.logger)
}

// clientGone marks the request as canceled by the client. Nothing is written to the response.
func (ex *exchange) clientGone(err error) {
	ex.status = StatusClientClosedRequest
	ex.err = err
	ex.relay.metrics.IncCancels(ex.endpoint)
}

func (ex *exchange) writeHeader(statusCode int) {
	ex.wroteHeader = true
	ex.rw.WriteHeader(statusCode)
}

func flush(rc *http.ResponseController) error {
	if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func setRetryAfter(rw http.ResponseWriter, d time.Duration) {
	if d <= 0 {
		return
	}
	rw.Header().Set(headerRetryAfter, strconv.Itoa(int(math.Ceil(d.Seconds()))))
}
