package broker

import (
	"context"
	"sync/atomic"

	"main/internal/schema"
	"main/pkg/exception"
)

// IBKRConfig points the stub at a TWS/Gateway endpoint.
type IBKRConfig struct {
	Host     string
	Port     int
	ClientID int
}

// IBKRStub is a placeholder for the Interactive Brokers integration. It
// enforces the connection gate and capability surface so callers exercise
// the real error paths; wire placement is not implemented.
type IBKRStub struct {
	cfg       IBKRConfig
	connected atomic.Bool
}

// NewIBKRStub creates a disconnected stub.
func NewIBKRStub(cfg IBKRConfig) *IBKRStub {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 7497
	}
	return &IBKRStub{cfg: cfg}
}

// Name returns "IBKR".
func (b *IBKRStub) Name() string { return "IBKR" }

// Connect marks the session connected.
func (b *IBKRStub) Connect() { b.connected.Store(true) }

// Disconnect drops the session.
func (b *IBKRStub) Disconnect() { b.connected.Store(false) }

// SubmitOrder fails with a transport error until real wire placement
// exists; disconnected sessions fail with ErrBrokerNotConnected.
func (b *IBKRStub) SubmitOrder(_ context.Context, _ *schema.Order) (string, error) {
	if !b.connected.Load() {
		return "", exception.ErrBrokerNotConnected
	}
	return "", exception.ErrTransport
}

// SubmitSpread fails like SubmitOrder.
func (b *IBKRStub) SubmitSpread(_ context.Context, _ *schema.SpreadOrder) (string, error) {
	if !b.connected.Load() {
		return "", exception.ErrBrokerNotConnected
	}
	return "", exception.ErrTransport
}

// SubmitOptionOrder reports the capability gap explicitly.
func (b *IBKRStub) SubmitOptionOrder(_ context.Context, _ *schema.Order) (string, error) {
	if !b.connected.Load() {
		return "", exception.ErrBrokerNotConnected
	}
	return "", exception.ErrUnsupported
}

// SubmitOptionSpread reports the capability gap explicitly.
func (b *IBKRStub) SubmitOptionSpread(_ context.Context, _ *schema.SpreadOrder) (string, error) {
	if !b.connected.Load() {
		return "", exception.ErrBrokerNotConnected
	}
	return "", exception.ErrUnsupported
}

// Cancel fails with a transport error until real wire placement exists.
func (b *IBKRStub) Cancel(_ context.Context, _ string) (schema.OrderStatus, error) {
	if !b.connected.Load() {
		return "", exception.ErrBrokerNotConnected
	}
	return "", exception.ErrTransport
}
