// Package scanner detects public tunnel endpoints in exec output.
//
// The output of a tunnel client is an unbounded byte stream delivered in
// arbitrary chunks. A Scanner reads it incrementally and reports every
// substring matching the endpoint pattern (cloudflared quick tunnel URLs by
// default). It keeps at most one chunk plus the unterminated tail of the
// current line in memory.
//
// No match is a normal outcome: the sequence simply ends with the stream.
package scanner
