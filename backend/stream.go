/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Stream is a streaming backend response with 2xx status.
// The body is read lazily: each Next call returns the bytes that have arrived so far (up to the buffer size)
// without waiting for more, so SSE events are relayed as soon as the backend emits them.
// Stream is not safe for concurrent use, except Close which may be called from any goroutine.
type Stream struct {
	StatusCode int
	Header     http.Header

	body      io.ReadCloser
	cancel    context.CancelFunc
	buf       []byte
	pending   error
	closeOnce sync.Once
}

func newStream(resp *http.Response, cancel context.CancelFunc, bufSize int) *Stream {
	return &Stream{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		body:       resp.Body,
		cancel:     cancel,
		buf:        make([]byte, bufSize),
	}
}

// Next returns the next raw chunk of the response body.
// The returned slice is valid only until the next call.
// It may be empty, callers are expected to skip such chunks.
// io.EOF is returned when the body is fully read.
func (s *Stream) Next() ([]byte, error) {
	if s.pending != nil {
		return nil, s.pending
	}
	n, err := s.body.Read(s.buf)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			err = fmt.Errorf("read backend stream: %w", err)
		}
		if n > 0 {
			// Return the data first, the error is reported on the next call.
			s.pending = err
			return s.buf[:n], nil
		}
		s.pending = err
		return nil, err
	}
	return s.buf[:n], nil
}

// Close aborts the backend request (if it's still in progress) and releases the connection.
// It's idempotent.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}
