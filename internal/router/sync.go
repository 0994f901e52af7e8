package router

import (
	"sync"
	"time"

	"nvrd/internal/logging"
)

const debounceWindow = 500 * time.Millisecond

// Sync owns the single writer/reloader of the router's configuration file,
// coalescing bursts of camera changes into one write+reload per
// debounceWindow and skipping the reload entirely when the effective
// document hasn't changed (spec.md §4.2 debounce + idempotence invariants).
type Sync struct {
	configPath string
	client     *Client
	logger     *logging.Logger

	mu      sync.Mutex
	pending Document
	have    bool
	timer   *time.Timer
}

// NewSync builds a Sync targeting configPath and the given router client.
func NewSync(configPath string, client *Client, logger *logging.Logger) *Sync {
	return &Sync{configPath: configPath, client: client, logger: logger}
}

// Request schedules doc to be written and reloaded. Calls arriving within
// debounceWindow of the first pending call collapse into a single write,
// using the latest doc; later calls do not extend the window.
func (s *Sync) Request(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = doc
	s.have = true

	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(debounceWindow, s.flush)
}

func (s *Sync) flush() {
	s.mu.Lock()
	doc := s.pending
	s.have = false
	s.timer = nil
	s.mu.Unlock()

	if err := s.apply(doc); err != nil {
		s.logger.With().WithError(err).Error("router config sync failed")
	}
}

// apply writes doc to disk (no-op if unchanged) and reloads the router.
func (s *Sync) apply(doc Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	current := readCurrent(s.configPath)
	if equalBytes(current, data) {
		return nil
	}

	if err := writeAtomic(s.configPath, data); err != nil {
		return err
	}
	if err := s.client.Reload(); err != nil {
		return err
	}
	s.logger.With().Info("router configuration reloaded")
	return nil
}

// Flush forces any pending debounced write to apply immediately, bypassing
// the timer. Used at shutdown.
func (s *Sync) Flush() error {
	s.mu.Lock()
	if !s.have {
		s.mu.Unlock()
		return nil
	}
	doc := s.pending
	s.have = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	return s.apply(doc)
}
