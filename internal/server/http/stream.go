package http

import (
	"errors"
	"net/http"
)

// streamWriter flushes every write and remembers whether the status line has gone out.
type streamWriter struct {
	w         http.ResponseWriter
	rc        *http.ResponseController
	committed bool
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	return &streamWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

func (s *streamWriter) Header() http.Header {
	return s.w.Header()
}

func (s *streamWriter) WriteHeader(code int) {
	s.committed = true
	s.w.WriteHeader(code)
}

// Write forwards p unchanged and flushes it to the client.
func (s *streamWriter) Write(p []byte) (int, error) {
	s.committed = true

	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}

	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}

	return n, nil
}

// Committed reports whether headers have been sent.
func (s *streamWriter) Committed() bool {
	return s.committed
}

func (s *streamWriter) Unwrap() http.ResponseWriter {
	return s.w
}
