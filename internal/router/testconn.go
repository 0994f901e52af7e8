package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"nvrd/internal/logging"
)

const testConnectionTTL = 60 * time.Second

// TestConnectionBroker grants short-lived router paths for the
// test-connection flow (spec.md §4.2, §6): C9 hands it an RTSP URL, it
// registers an ephemeral path with the router directly (not via the
// debounced Sync) and expires it after testConnectionTTL regardless of
// whether the caller ever used it.
type TestConnectionBroker struct {
	client *Client
	logger *logging.Logger

	mu      sync.Mutex
	expires map[string]*time.Timer
}

// NewTestConnectionBroker builds a broker over client.
func NewTestConnectionBroker(client *Client, logger *logging.Logger) *TestConnectionBroker {
	return &TestConnectionBroker{
		client:  client,
		logger:  logger,
		expires: make(map[string]*time.Timer),
	}
}

// Request registers a fresh ephemeral path for rtspURL and returns its name.
func (b *TestConnectionBroker) Request(rtspURL string) (string, error) {
	name := "test-" + uuid.NewString()[:8]

	entry := PathEntry{Source: rtspURL, SourceOnDemand: true}
	if err := b.client.AddPath(name, entry); err != nil {
		return "", fmt.Errorf("register ephemeral test path: %w", err)
	}

	b.mu.Lock()
	b.expires[name] = time.AfterFunc(testConnectionTTL, func() { b.expire(name) })
	b.mu.Unlock()

	return name, nil
}

func (b *TestConnectionBroker) expire(name string) {
	b.mu.Lock()
	delete(b.expires, name)
	b.mu.Unlock()

	if err := b.client.RemovePath(name); err != nil {
		b.logger.With().WithError(err).WithField("path", name).Warn("failed to expire test-connection path")
	}
}

// Release removes a test-connection path immediately, e.g. when the caller
// is done before the TTL elapses.
func (b *TestConnectionBroker) Release(name string) {
	b.mu.Lock()
	timer, ok := b.expires[name]
	if ok {
		timer.Stop()
		delete(b.expires, name)
	}
	b.mu.Unlock()
	if ok {
		b.client.RemovePath(name)
	}
}
