package remote

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/fabrica/pkg/model"
)

// DispatchTransport routes each exchange by endpoint address scheme: ws:// and
// wss:// addresses go over WebSocket, everything else over HTTP. A routing
// file can mix both kinds of endpoint for the same user.
type DispatchTransport struct {
	http Transport
	ws   Transport
}

// NewDispatchTransport creates a dispatcher with both protocols sharing the
// same per-attempt timeout.
func NewDispatchTransport(timeout time.Duration) *DispatchTransport {
	return &DispatchTransport{
		http: NewHTTPTransport(timeout),
		ws:   NewWebSocketTransport(timeout),
	}
}

func (t *DispatchTransport) Exchange(ctx context.Context, address string, req *model.CallRequest) (*model.CallResult, error) {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		return t.ws.Exchange(ctx, address, req)
	}
	return t.http.Exchange(ctx, address, req)
}
