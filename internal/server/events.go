package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/broadcast"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
)

const wsWriteTimeout = 10 * time.Second

// sseFrame frames one event for text/event-stream.
func sseFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	return append(frame, '\n', '\n')
}

// handleEvents streams tunnel events as server-sent events until the
// client goes away, the observer is dropped or the server shuts down.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		a.config.Logger.Debug("could not clear write deadline", "error", err)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(sseFrame(broadcast.NoMatch().Marshal())); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		a.config.Logger.Warn("event stream cannot flush", "error", err)
		return
	}

	// After Subscribe only the delivery goroutine writes to w.
	obs := a.backend.Events.Subscribe(broadcast.SinkFunc(func(ctx context.Context, payload []byte) error {
		if _, err := w.Write(sseFrame(payload)); err != nil {
			return err
		}
		return rc.Flush()
	}))
	a.config.Logger.Debug("sse observer connected", "observer", obs.ID(), "remote", r.RemoteAddr)

	a.await(r.Context(), obs)
	a.config.Logger.Debug("sse observer disconnected", "observer", obs.ID(), "reason", obs.Err())
}

// handleEventsWS streams tunnel events as WebSocket text messages.
func (a *API) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: a.allowAnyOrigin(),
		OriginPatterns:     a.originPatterns(),
	})
	if err != nil {
		a.config.Logger.Warn("websocket handshake failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close(websocket.StatusAbnormalClosure, "handler exited unexpectedly")

	// Observers only listen; CloseRead handles control frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	send := func(ctx context.Context, payload []byte) error {
		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		defer cancel()
		return conn.Write(wctx, websocket.MessageText, payload)
	}
	if err := send(ctx, broadcast.NoMatch().Marshal()); err != nil {
		return
	}

	obs := a.backend.Events.Subscribe(broadcast.SinkFunc(func(octx context.Context, payload []byte) error {
		return send(octx, payload)
	}))
	a.config.Logger.Debug("websocket observer connected", "observer", obs.ID(), "remote", r.RemoteAddr)

	a.await(ctx, obs)

	if errors.Is(obs.Err(), broadcast.ErrSlowObserver) {
		conn.Close(websocket.StatusPolicyViolation, "too slow")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// await blocks until ctx ends, the observer is removed or the server
// shuts down, then makes sure nothing more is delivered to it.
func (a *API) await(ctx context.Context, obs *broadcast.Observer) {
	select {
	case <-ctx.Done():
	case <-obs.Done():
	case <-a.quit:
	}
	a.backend.Events.Unsubscribe(obs.ID())
	<-obs.Done()
}
