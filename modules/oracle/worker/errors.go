// Package worker bridges out-of-process answer workers over WebSocket and
// exposes them as an oracle.Oracle. Workers connect to the gateway,
// authenticate with a shared token, receive the knowledge base and then
// answer queries correlated by envelope id.
package worker

import "errors"

// Sentinel errors for the worker package.
var (
	ErrNoWorker      = errors.New("worker: no ready worker is connected")
	ErrWorkerClosed  = errors.New("worker: connection closed")
	ErrInvalidToken  = errors.New("worker: invalid token")
	ErrMaxWorkers    = errors.New("worker: maximum number of workers reached")
	ErrRejected      = errors.New("worker: hello rejected")
	ErrRemote        = errors.New("worker: remote error")
	ErrUnexpectedMsg = errors.New("worker: unexpected message")
)
