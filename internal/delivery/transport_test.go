package delivery

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingDialer struct {
	calls int
}

func (d *failingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls++
	return nil, errors.New("connection refused")
}

func TestTransportConfigAddr(t *testing.T) {
	cfg := TransportConfig{Host: "smtp.example.com", Port: 587}
	assert.Equal(t, "smtp.example.com:587", cfg.Addr())
}

func TestSMTPTransportName(t *testing.T) {
	tr := NewSMTPTransport("primary", TransportConfig{Host: "smtp.example.com", Port: 587}, "relay.example.com")
	assert.Equal(t, "primary", tr.Name())
}

func TestSMTPTransportDialFailure(t *testing.T) {
	dialer := &failingDialer{}
	tr := NewSMTPTransport("primary", TransportConfig{Host: "smtp.example.com", Port: 587}, "").WithDialer(dialer)

	err := tr.Send(context.Background(), "a@example.com", []string{"b@example.com"}, []byte("msg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial")
	assert.Equal(t, 1, dialer.calls)
}

func TestSMTPTransportBreakerOpensAfterRepeatedFailures(t *testing.T) {
	dialer := &failingDialer{}
	tr := NewSMTPTransport("flaky", TransportConfig{Host: "smtp.example.com", Port: 587}, "").WithDialer(dialer)

	for i := 0; i < 3; i++ {
		err := tr.Send(context.Background(), "a@example.com", []string{"b@example.com"}, []byte("msg"))
		require.Error(t, err)
	}

	// The breaker is open now: the next attempt fails without dialing.
	before := dialer.calls
	err := tr.Send(context.Background(), "a@example.com", []string{"b@example.com"}, []byte("msg"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, before, dialer.calls)
}

func TestSMTPTransportHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dialer := &failingDialer{}
	tr := NewSMTPTransport("primary", TransportConfig{Host: "smtp.example.com", Port: 587}, "").WithDialer(dialer)

	err := tr.Send(ctx, "a@example.com", []string{"b@example.com"}, []byte("msg"))
	require.Error(t, err)
	assert.Equal(t, 0, dialer.calls)
}
