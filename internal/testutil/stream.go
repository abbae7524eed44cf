package testutil

import (
	"io"
	"sync"
)

// Stream is a controllable exec output stream. The test writes output and
// decides how the process exits; the code under test reads and closes it
// like a real runtime.ExecStream result.
type Stream struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu       sync.Mutex
	exitErr  error
	closed   bool
	finished bool
}

// NewStream creates an open stream.
func NewStream() *Stream {
	pr, pw := io.Pipe()
	return &Stream{pr: pr, pw: pw}
}

// Write sends output to the reader. It blocks until the reader has
// consumed it and returns false once the reader has closed the stream.
func (s *Stream) Write(output string) bool {
	_, err := s.pw.Write([]byte(output))
	return err == nil
}

// Finish ends the output. exitErr is what Close reports, standing in for a
// non-zero exit status.
func (s *Stream) Finish(exitErr error) {
	s.mu.Lock()
	s.exitErr = exitErr
	s.finished = true
	s.mu.Unlock()
	s.pw.Close()
}

// Fail breaks the stream mid-read, like a dropped engine connection.
func (s *Stream) Fail(err error) {
	s.pw.CloseWithError(err)
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close implements io.Closer. It returns the exit error set by Finish.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pr.Close()
	if s.finished {
		return s.exitErr
	}
	return nil
}

// Closed reports whether the reader side has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
