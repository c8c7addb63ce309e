package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Transport performs one request/response exchange with a remote service.
// Implementations must wrap retryable failures (timeout, connection error,
// malformed or failed response) in model.ErrTransientFailure; anything else
// is treated as fatal by the client.
type Transport interface {
	Exchange(ctx context.Context, address string, req *model.CallRequest) (*model.CallResult, error)
}

// HTTPTransport exchanges the call envelope as a JSON POST.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport with a per-attempt timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Exchange(ctx context.Context, address string, req *model.CallRequest) (*model.CallResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal call request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.V("address", address))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, goerr.Wrap(model.ErrTransientFailure, "request failed",
			goerr.V("address", address),
			goerr.V("cause", err.Error()),
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Server-side trouble and throttling may clear up on retry; any
		// other client error is a rejected request and retrying cannot help
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, goerr.Wrap(model.ErrTransientFailure, "unexpected response status",
				goerr.V("address", address),
				goerr.V("status", resp.StatusCode),
			)
		}
		return nil, goerr.New("request rejected by service",
			goerr.V("address", address),
			goerr.V("status", resp.StatusCode),
		)
	}

	return decodeResult(resp.Body, address)
}

// decodeResult parses and validates the response envelope. Shared by all
// transports so the transient/failed classification stays identical.
func decodeResult(r io.Reader, address string) (*model.CallResult, error) {
	var result model.CallResult
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, goerr.Wrap(model.ErrTransientFailure, "malformed response",
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
