package remote_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/service/remote"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

// fakeTransport scripts per-address outcomes and counts attempts.
type fakeTransport struct {
	mu       sync.Mutex
	attempts map[string]int
	fail     map[string]bool
	fatal    map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		attempts: map[string]int{},
		fail:     map[string]bool{},
		fatal:    map[string]error{},
	}
}

func (t *fakeTransport) Exchange(ctx context.Context, address string, req *model.CallRequest) (*model.CallResult, error) {
	t.mu.Lock()
	t.attempts[address]++
	failing := t.fail[address]
	fatal := t.fatal[address]
	t.mu.Unlock()

	if fatal != nil {
		return nil, fatal
	}
	if failing {
		return nil, model.ErrTransientFailure
	}
	return &model.CallResult{
		Status: model.StatusCompleted,
		Result: map[string]any{"echo": req.Payload},
	}, nil
}

func (t *fakeTransport) count(address string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[address]
}

func newClient(transport remote.Transport, cfg remote.Config) *remote.Client {
	endpoints := []*model.Endpoint{
		model.NewEndpoint("svc-a", "addr-a"),
		model.NewEndpoint("svc-b", "addr-b"),
	}
	return remote.New("test-user", endpoints, transport, cfg)
}

func TestCallSuccess(t *testing.T) {
	transport := newFakeTransport()
	client := newClient(transport, remote.Config{MaxRetries: 3})

	result, err := client.Call(context.Background(), "svc-a", map[string]any{"prompt": "hi"})
	gt.NoError(t, err)
	gt.V(t, result).NotNil()
	gt.Equal(t, transport.count("addr-a"), 1)
	gt.B(t, client.IsServiceAvailable("svc-a")).True()
}

func TestCallUnknownService(t *testing.T) {
	transport := newFakeTransport()
	client := newClient(transport, remote.Config{MaxRetries: 3})

	_, err := client.Call(context.Background(), "no-such-service", nil)
	gt.Error(t, err)
	gt.B(t, errors.Is(err, model.ErrUnknownService)).True()
	gt.Equal(t, transport.count("no-such-service"), 0)
}

func TestCallRetriesExactBudget(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 2, 5} {
		transport := newFakeTransport()
		transport.fail["addr-b"] = true
		client := newClient(transport, remote.Config{MaxRetries: maxRetries})

		_, err := client.Call(context.Background(), "svc-b", nil)
		gt.Error(t, err)
		gt.B(t, errors.Is(err, model.ErrServiceUnavailable)).True()
		gt.Equal(t, transport.count("addr-b"), maxRetries+1)
	}
}

func TestCallFatalErrorNotRetried(t *testing.T) {
	transport := newFakeTransport()
	transport.fatal["addr-b"] = goerr.New("request rejected by service")
	client := newClient(transport, remote.Config{MaxRetries: 5})

	_, err := client.Call(context.Background(), "svc-b", nil)
	gt.Error(t, err)
	gt.B(t, errors.Is(err, model.ErrServiceUnavailable)).False()

	// A rejected request fails fast and is not an availability signal
	gt.Equal(t, transport.count("addr-b"), 1)
	gt.B(t, client.IsServiceAvailable("svc-b")).True()
}

func TestAvailabilityLifecycle(t *testing.T) {
	transport := newFakeTransport()
	client := newClient(transport, remote.Config{MaxRetries: 1})
	ctx := context.Background()

	gt.B(t, client.IsServiceAvailable("svc-b")).True()

	// Exhausting retries flips the flag off
	transport.fail["addr-b"] = true
	_, err := client.Call(ctx, "svc-b", nil)
	gt.Error(t, err)
	gt.B(t, client.IsServiceAvailable("svc-b")).False()

	// The flag is advisory: the next call still probes, and success flips
	// the flag back on
	transport.fail["addr-b"] = false
	_, err = client.Call(ctx, "svc-b", nil)
	gt.NoError(t, err)
	gt.B(t, client.IsServiceAvailable("svc-b")).True()
}

func TestAvailableServicesSnapshot(t *testing.T) {
	transport := newFakeTransport()
	transport.fail["addr-b"] = true
	client := newClient(transport, remote.Config{MaxRetries: 0})

	_, err := client.Call(context.Background(), "svc-b", nil)
	gt.Error(t, err)

	gt.Equal(t, client.AvailableServices(), []model.ServiceID{"svc-a"})
}

func TestConsecutiveFailureCounter(t *testing.T) {
	transport := newFakeTransport()
	transport.fail["addr-b"] = true
	client := newClient(transport, remote.Config{MaxRetries: 0})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.Call(ctx, "svc-b", nil)
		gt.Error(t, err)
	}

	eps := client.Services()
	gt.A(t, eps).Length(2)
	gt.Equal(t, eps[1].ID, model.ServiceID("svc-b"))
	gt.Equal(t, eps[1].ConsecutiveFailures, 3)

	// Success resets the counter
	transport.fail["addr-b"] = false
	_, err := client.Call(ctx, "svc-b", nil)
	gt.NoError(t, err)
	gt.Equal(t, client.Services()[1].ConsecutiveFailures, 0)
}

func TestCallCancelledDuringRetryDelay(t *testing.T) {
	transport := newFakeTransport()
	transport.fail["addr-b"] = true
	client := newClient(transport, remote.Config{
		MaxRetries: 10,
		RetryDelay: time.Hour, // would block forever without cancellation
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Call(ctx, "svc-b", nil)
	gt.Error(t, err)
	gt.B(t, errors.Is(err, context.Canceled)).True()
	gt.B(t, time.Since(start) < 10*time.Second).True()

	// Only the first attempt ran; no retry after cancellation
	gt.Equal(t, transport.count("addr-b"), 1)
}

func TestRetryDelayIsApplied(t *testing.T) {
	transport := newFakeTransport()
	transport.fail["addr-b"] = true
	client := newClient(transport, remote.Config{
		MaxRetries: 2,
		RetryDelay: 30 * time.Millisecond,
	})

	start := time.Now()
	_, err := client.Call(context.Background(), "svc-b", nil)
	gt.Error(t, err)

	// Two delays between three attempts
	gt.B(t, time.Since(start) >= 60*time.Millisecond).True()
}
