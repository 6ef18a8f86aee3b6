// Package oracletest provides test helpers for the oracle package.
package oracletest

import (
	"context"
	"sync"

	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/oracle"
)

// MockOracle is a configurable test double for oracle.Oracle.
// Set the Func fields to control behavior. An unset InitializeFunc
// succeeds; unset ProcessQueryFunc and HealthCheckFunc panic on call.
// All methods are safe for concurrent use.
type MockOracle struct {
	InitializeFunc   func(ctx context.Context, base *knowledge.Base, cfg oracle.Config) error
	ProcessQueryFunc func(ctx context.Context, req oracle.Request) (oracle.Answer, error)
	HealthCheckFunc  func(ctx context.Context) error

	mu              sync.Mutex
	InitializeCalls int
	QueryCalls      int
	HealthCalls     int
	Requests        []oracle.Request
}

// Initialize delegates to InitializeFunc and tracks call count.
func (m *MockOracle) Initialize(ctx context.Context, base *knowledge.Base, cfg oracle.Config) error {
	m.mu.Lock()
	m.InitializeCalls++
	m.mu.Unlock()
	if m.InitializeFunc == nil {
		return nil
	}
	return m.InitializeFunc(ctx, base, cfg)
}

// ProcessQuery delegates to ProcessQueryFunc and records the request.
func (m *MockOracle) ProcessQuery(ctx context.Context, req oracle.Request) (oracle.Answer, error) {
	m.mu.Lock()
	m.QueryCalls++
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	return m.ProcessQueryFunc(ctx, req)
}

// HealthCheck delegates to HealthCheckFunc and tracks call count.
func (m *MockOracle) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	return m.HealthCheckFunc(ctx)
}

// Calls returns the number of ProcessQuery calls so far.
func (m *MockOracle) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.QueryCalls
}

// Interface guards.
var (
	_ oracle.Oracle        = (*MockOracle)(nil)
	_ oracle.HealthChecker = (*MockOracle)(nil)
)
