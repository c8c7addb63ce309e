package remote

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Config controls the retry policy of a Client.
type Config struct {
	// MaxRetries is the number of additional attempts after the first one;
	// a permanently failing endpoint sees exactly MaxRetries+1 attempts.
	MaxRetries int

	// RetryDelay is the wait between attempts. The wait is aborted when the
	// call context is cancelled.
	RetryDelay time.Duration

	// RequireAll tells the orchestrating flow whether a ServiceUnavailable
	// from any service must abort the whole pipeline. The client itself only
	// reports per-call outcomes.
	RequireAll bool
}

// Client orchestrates calls to the remote generation services configured for
// one user session. Endpoint availability state is owned by the client and
// never shared across sessions.
//
// The Available flag on an endpoint is advisory: Call always probes the
// endpoint regardless of the flag, and the flag is refreshed from the
// outcome of every call.
type Client struct {
	userID    string
	cfg       Config
	transport Transport

	mu        sync.Mutex
	endpoints map[model.ServiceID]*model.Endpoint
}

// New creates a client for one user with its own endpoint table.
func New(userID string, endpoints []*model.Endpoint, transport Transport, cfg Config) *Client {
	table := make(map[model.ServiceID]*model.Endpoint, len(endpoints))
	for _, ep := range endpoints {
		table[ep.ID] = ep
	}

	return &Client{
		userID:    userID,
		cfg:       cfg,
		transport: transport,
		endpoints: table,
	}
}

// Call performs the exchange with the given service, retrying transient
// failures up to MaxRetries additional times with RetryDelay between
// attempts. After the budget is exhausted the endpoint is marked unavailable
// and model.ErrServiceUnavailable is returned. Errors not marked transient
// are returned immediately without touching the availability state, and a
// cancelled context stops retrying and surfaces the cancellation.
func (c *Client) Call(ctx context.Context, serviceID model.ServiceID, payload map[string]any) (*model.CallResult, error) {
	c.mu.Lock()
	ep, ok := c.endpoints[serviceID]
	c.mu.Unlock()
	if !ok {
		return nil, goerr.Wrap(model.ErrUnknownService, "service is not configured",
			goerr.V("service", serviceID),
			goerr.V("user", c.userID),
		)
	}

	req := &model.CallRequest{
		Payload: payload,
		UserID:  c.userID,
	}
	logger := logging.From(ctx)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx); err != nil {
				return nil, err
			}
		}

		result, err := c.transport.Exchange(ctx, ep.Address, req)
		if err == nil {
			c.markSuccess(ep)
			logger.Debug("remote call succeeded",
				"service", serviceID,
				"attempt", attempt+1,
			)
			return result, nil
		}

		lastErr = err
		logger.Warn("remote call attempt failed",
			"service", serviceID,
			"attempt", attempt+1,
			"max_attempts", c.cfg.MaxRetries+1,
			"error", err,
		)

		// Cancellation observed: stop retrying and surface it as-is
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// A non-transient failure means the request itself was rejected;
		// retrying cannot change the outcome
		if !errors.Is(err, model.ErrTransientFailure) {
			return nil, err
		}
	}

	c.markFailure(ep)
	return nil, goerr.Wrap(model.ErrServiceUnavailable, "retry budget exhausted",
		goerr.V("service", serviceID),
		goerr.V("attempts", c.cfg.MaxRetries+1),
		goerr.V("last_error", lastErr.Error()),
	)
}

// IsServiceAvailable reports the advisory availability flag. It never probes
// the network.
func (c *Client) IsServiceAvailable(serviceID model.ServiceID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ep, ok := c.endpoints[serviceID]
	return ok && ep.Available
}

// AvailableServices returns a sorted snapshot of services currently flagged
// available.
func (c *Client) AvailableServices() []model.ServiceID {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []model.ServiceID
	for id, ep := range c.endpoints {
		if ep.Available {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Services returns a sorted snapshot of all configured endpoints.
func (c *Client) Services() []*model.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	eps := make([]*model.Endpoint, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		copied := *ep
		eps = append(eps, &copied)
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].ID < eps[j].ID })
	return eps
}

// RequireAll exposes the all-or-partial policy to the orchestrating flow.
func (c *Client) RequireAll() bool {
	return c.cfg.RequireAll
}

// UserID returns the identity this client calls on behalf of.
func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) wait(ctx context.Context) error {
	if c.cfg.RetryDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(c.cfg.RetryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) markSuccess(ep *model.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep.MarkSuccess()
}

func (c *Client) markFailure(ep *model.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep.MarkFailure()
}
