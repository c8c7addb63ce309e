package model

type ServiceID string

// Well-known services of the generation pipeline. Additional services can be
// configured freely; these are the ones the generate usecase drives.
const (
	ServiceTextToImage ServiceID = "text-to-image"
	ServiceImageTo3D   ServiceID = "image-to-3d"
)

// Endpoint represents one configured remote generation service for one user
// session. Address is resolved once at configuration time and never changes.
// Available and ConsecutiveFailures are maintained by the owning client;
// endpoints are never shared across sessions.
type Endpoint struct {
	ID                  ServiceID
	Address             string
	Available           bool
	ConsecutiveFailures int
}

// NewEndpoint creates an endpoint in its initial state. Endpoints start
// available; the flag is only advisory and re-evaluated on every call.
func NewEndpoint(id ServiceID, address string) *Endpoint {
	return &Endpoint{
		ID:        id,
		Address:   address,
		Available: true,
	}
}

// MarkSuccess records a successful exchange with the endpoint.
func (e *Endpoint) MarkSuccess() {
	e.Available = true
	e.ConsecutiveFailures = 0
}

// MarkFailure records an exhausted retry budget against the endpoint.
func (e *Endpoint) MarkFailure() {
	e.Available = false
	e.ConsecutiveFailures++
}

// CallRequest is the envelope sent to a remote service.
type CallRequest struct {
	Payload map[string]any `json:"payload"`
	UserID  string         `json:"user_id"`
}

// Remote execution status values in the response envelope.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// CallResult is the envelope returned by a remote service. Result is an
// opaque key/value mapping; its interpretation belongs to the caller.
type CallResult struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result"`
}
