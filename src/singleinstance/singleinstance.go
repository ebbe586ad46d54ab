// Package singleinstance keeps a second chatbench from driving the desktop
// while a batch is running. The running batch holds a loopback TCP port and
// answers PING and STATUS requests on it.
package singleinstance

import (
	"context"
	"errors"
)

// ErrAlreadyRunning is returned by Server.Start when another instance holds
// the lock port.
var ErrAlreadyRunning = errors.New("another chatbench batch is running")

// StatusFunc reports the holder's progress, e.g. "gpt_4o [3/12] auth1.txt".
type StatusFunc func() string

// Server holds the lock for the lifetime of a batch.
type Server interface {
	// Start binds the lock port and serves requests until ctx ends or Close.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	Close() error
}

// Client looks for a running batch.
type Client interface {
	// Detect scans the port range and returns the holder's status.
	Detect(ctx context.Context) (status string, running bool)
}

// NewServer returns the TCP implementation. A zero port uses the first port
// of the configured range.
func NewServer(port int, status StatusFunc) Server { return newTCPServer(port, status) }

// NewClient returns the TCP implementation. A zero port scans the configured
// range.
func NewClient(port int) Client { return newTCPClient(port) }
