// Package broadcast fans tunnel events out to push subscribers.
//
// Observers subscribe with a Sink (an SSE response, a WebSocket, a message
// broker relay). Publish serializes an Event once and queues it for every
// observer present at that moment. Each observer drains its queue on its
// own goroutine, so delivery order per observer matches publish order and a
// slow or broken observer never delays the others. An observer is removed
// when its queue overflows or its sink returns an error.
//
// The wire payload is a JSON object with a single "message" key holding the
// endpoint URL or null:
//
//	{"message":"https://quiet-lake.trycloudflare.com"}
package broadcast
