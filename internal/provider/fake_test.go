package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/transact-messaging/internal/domain"
)

func TestFakeClient_DeterministicByToAndBody(t *testing.T) {
	f := NewFakeClient()
	f.SetResult("+15551234567", "hello", domain.SendResult{ProviderSid: "SID-1"})

	r1, err := f.Send(context.Background(), "+15551234567", "hello")
	assert.NoError(t, err)
	assert.Equal(t, "SID-1", r1.ProviderSid)

	r2, err := f.Send(context.Background(), "+15551234567", "hello")
	assert.NoError(t, err)
	assert.Equal(t, r1, r2)

	assert.Len(t, f.Calls, 2)
}

func TestFakeClient_ReturnsQueuedError(t *testing.T) {
	f := NewFakeClient()
	wantErr := &domain.ProviderError{Kind: domain.ProviderPermanent, Code: 400}
	f.SetError("+15557654321", "bye", wantErr)

	_, err := f.Send(context.Background(), "+15557654321", "bye")
	assert.Same(t, wantErr, err)
}

func TestFakeClient_UnseededCallsGetDistinctSids(t *testing.T) {
	f := NewFakeClient()

	r1, _ := f.Send(context.Background(), "+15550000001", "a")
	r2, _ := f.Send(context.Background(), "+15550000002", "b")

	assert.NotEqual(t, r1.ProviderSid, r2.ProviderSid)
}
