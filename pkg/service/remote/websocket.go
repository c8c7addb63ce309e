package remote

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// WebSocketTransport exchanges the call envelope over a websocket: dial,
// write one request frame, read one response frame. Services that stream
// their execution through a proxy expose this style of endpoint.
type WebSocketTransport struct {
	dialer  *websocket.Dialer
	timeout time.Duration
}

// NewWebSocketTransport creates a websocket transport with a per-attempt
// timeout covering dial, write, and read.
func NewWebSocketTransport(timeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
		timeout: timeout,
	}
}

func (t *WebSocketTransport) Exchange(ctx context.Context, address string, req *model.CallRequest) (*model.CallResult, error) {
	conn, _, err := t.dialer.DialContext(ctx, address, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, goerr.Wrap(model.ErrTransientFailure, "failed to dial websocket",
			goerr.V("address", address),
			goerr.V("cause", err.Error()),
		)
	}
	defer conn.Close()

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	if err := conn.WriteJSON(req); err != nil {
		return nil, goerr.Wrap(model.ErrTransientFailure, "failed to send request frame",
			goerr.V("address", address),
			goerr.V("cause", err.Error()),
		)
	}

	var result model.CallResult
	if err := conn.ReadJSON(&result); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, goerr.Wrap(model.ErrTransientFailure, "failed to read response frame",
			goerr.V("address", address),
			goerr.V("cause", err.Error()),
		)
	}

	switch result.Status {
	case model.StatusFailed, model.StatusCancelled:
		return nil, goerr.Wrap(model.ErrTransientFailure, "remote execution did not complete",
			goerr.V("address", address),
			goerr.V("status", result.Status),
		)
	}

	return &result, nil
}
