package scanner

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"regexp"
)

const (
	// DefaultChunkSize is the read size used when none is configured.
	DefaultChunkSize = 32 * 1024

	// DefaultMaxCarry bounds the trailing partial line kept between reads.
	DefaultMaxCarry = 4 * 1024

	maxConsecutiveEmptyReads = 100
)

// DefaultPattern matches cloudflared quick tunnel URLs.
var DefaultPattern = regexp.MustCompile(`https://[a-z0-9-]+\.trycloudflare\.com`)

// TunnelEvent is a public endpoint found in a stream.
type TunnelEvent struct {
	URL string

	// Seq numbers events from one scanner starting at 1.
	Seq int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPattern sets the endpoint pattern.
func WithPattern(re *regexp.Regexp) Option {
	return func(s *Scanner) {
		if re != nil {
			s.re = re
		}
	}
}

// WithChunkSize sets the size of each read.
func WithChunkSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithMaxCarry sets how many bytes of an unterminated line are kept for
// matching against the next read.
func WithMaxCarry(n int) Option {
	return func(s *Scanner) {
		if n >= 0 {
			s.maxCarry = n
		}
	}
}

// Scanner finds tunnel endpoints in an unbounded output stream.
//
// Matching runs on each chunk as it is read, joined with the unterminated
// tail of the previous chunks so a URL split across reads is still found.
// Every match is reported, including repeats. Memory use is bounded by the
// chunk size plus the carry limit.
//
// Usage follows bufio.Scanner:
//
//	s := scanner.New(stream)
//	for s.Next() {
//		fmt.Println(s.Event().URL)
//	}
//	if err := s.Err(); err != nil { ... }
type Scanner struct {
	r         io.Reader
	re        *regexp.Regexp
	chunkSize int
	maxCarry  int

	buf     []byte
	carry   []byte
	pending []TunnelEvent
	event   TunnelEvent
	seq     int
	err     error
	done    bool
}

// New returns a Scanner reading from r.
func New(r io.Reader, opts ...Option) *Scanner {
	s := &Scanner{
		r:         r,
		re:        DefaultPattern,
		chunkSize: DefaultChunkSize,
		maxCarry:  DefaultMaxCarry,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buf = make([]byte, s.chunkSize)
	return s
}

// Next advances to the next event. It returns false when the stream has
// ended or failed; Err tells the two apart.
func (s *Scanner) Next() bool {
	empty := 0
	for len(s.pending) == 0 {
		if s.done {
			return false
		}

		n, err := s.r.Read(s.buf)
		if n > 0 {
			empty = 0
			s.scan(s.buf[:n])
		} else if err == nil {
			empty++
			if empty >= maxConsecutiveEmptyReads {
				err = io.ErrNoProgress
			}
		}

		if err != nil {
			s.done = true
			s.carry = nil
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
		}
	}

	s.event = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

// Event returns the event found by the last call to Next.
func (s *Scanner) Event() TunnelEvent {
	return s.event
}

// Err returns the first non-EOF read error.
func (s *Scanner) Err() error {
	return s.err
}

// All returns the remaining events as a sequence. The sequence ends with
// the stream; check Err afterwards.
func (s *Scanner) All() iter.Seq[TunnelEvent] {
	return func(yield func(TunnelEvent) bool) {
		for s.Next() {
			if !yield(s.Event()) {
				return
			}
		}
	}
}

// Carry returns the number of bytes currently retained between reads.
func (s *Scanner) Carry() int {
	return len(s.carry)
}

func (s *Scanner) scan(chunk []byte) {
	window := make([]byte, 0, len(s.carry)+len(chunk))
	window = append(window, s.carry...)
	window = append(window, chunk...)

	// A match is new only if it ends past the carried bytes; anything
	// ending inside the carry was reported by an earlier read.
	for _, loc := range s.re.FindAllIndex(window, -1) {
		if loc[1] <= len(s.carry) {
			continue
		}
		s.seq++
		s.pending = append(s.pending, TunnelEvent{
			URL: string(window[loc[0]:loc[1]]),
			Seq: s.seq,
		})
	}

	tail := window
	if i := bytes.LastIndexByte(window, '\n'); i >= 0 {
		tail = window[i+1:]
	}
	if len(tail) > s.maxCarry {
		tail = tail[len(tail)-s.maxCarry:]
	}
	s.carry = append(s.carry[:0:0], tail...)
}
