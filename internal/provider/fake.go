package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/ignite/transact-messaging/internal/domain"
)

// FakeClient is a Client test double keyed by (to, body): a pair with an
// injected result or error returns it on every call, a pair with nothing
// injected gets a fresh sequential sid on each call, and every call is
// recorded for assertions.
type FakeClient struct {
	mu      sync.Mutex
	Results map[string]domain.SendResult
	Errors  map[string]error
	Block   map[string]bool
	Calls   []FakeCall
	seq     int
}

// FakeCall records one Send invocation.
type FakeCall struct {
	To   string
	Body string
}

// NewFakeClient creates an empty FakeClient; queue outcomes with
// SetResult/SetError before exercising the code under test.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Results: make(map[string]domain.SendResult),
		Errors:  make(map[string]error),
		Block:   make(map[string]bool),
	}
}

func (f *FakeClient) key(to, body string) string { return to + "\x00" + body }

// SetResult makes every Send for (to, body) succeed with result.
func (f *FakeClient) SetResult(to, body string, result domain.SendResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[f.key(to, body)] = result
}

// SetError makes every Send for (to, body) fail with err.
func (f *FakeClient) SetError(to, body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[f.key(to, body)] = err
}

// SetBlocking makes Send for (to, body) block until ctx is Done (its
// deadline expires or it is cancelled), returning ctx.Err() — simulating a
// provider that never responds within the caller's deadline.
func (f *FakeClient) SetBlocking(to, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Block[f.key(to, body)] = true
}

// Send implements Client.
func (f *FakeClient) Send(ctx context.Context, to, body string) (domain.SendResult, error) {
	f.mu.Lock()
	k := f.key(to, body)
	f.Calls = append(f.Calls, FakeCall{To: to, Body: body})
	blocking := f.Block[k]
	f.mu.Unlock()

	if blocking {
		<-ctx.Done()
		return domain.SendResult{}, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.Errors[k]; ok {
		return domain.SendResult{}, err
	}
	if result, ok := f.Results[k]; ok {
		return result, nil
	}

	f.seq++
	return domain.SendResult{ProviderSid: fmt.Sprintf("FAKE-SID-%d", f.seq)}, nil
}
