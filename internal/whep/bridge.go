// Package whep implements C8 WHEP Credential Bridge: a rotating pool of
// short-lived HTTP Basic credentials scoped to "read any path", minted for
// browsers that cannot hold the router's real credentials (spec.md §4.8).
package whep

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const (
	maxPoolSize       = 16
	unusedTTL         = 60 * time.Second
	usedTTL           = 5 * time.Minute
)

// Credential is one minted {user, pass} pair and its expiry bookkeeping.
type Credential struct {
	User string
	Pass string

	mintedAt time.Time
	used     bool
	usedAt   time.Time
}

func (c *Credential) expiresAt() time.Time {
	if c.used {
		return c.usedAt.Add(usedTTL)
	}
	return c.mintedAt.Add(unusedTTL)
}

// RouterRegistrar registers/deregisters a credential with the router's
// control interface at mint/expire time (spec.md §4.8 "registered with the
// router at mint time").
type RouterRegistrar interface {
	RegisterCredential(user, pass string) error
	RevokeCredential(user string) error
}

// Bridge owns the credential pool. All mutation happens under one lock;
// mint and expire use a linear scan of the pool, which maxPoolSize bounds
// at 16 entries, so no heap is kept.
type Bridge struct {
	router RouterRegistrar

	mu    sync.Mutex
	pool  []*Credential
}

// New builds a Bridge.
func New(router RouterRegistrar) *Bridge {
	return &Bridge{router: router}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Mint evicts expired credentials, optionally drops the oldest to respect
// maxPoolSize, generates a fresh credential, registers it with the router,
// and returns it.
func (b *Bridge) Mint() (*Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evictLocked(time.Now())

	if len(b.pool) >= maxPoolSize {
		oldest := b.pool[0]
		b.pool = b.pool[1:]
		b.router.RevokeCredential(oldest.User)
	}

	user, err := randomHex(8)
	if err != nil {
		return nil, fmt.Errorf("generate whep credential user: %w", err)
	}
	pass, err := randomHex(16)
	if err != nil {
		return nil, fmt.Errorf("generate whep credential pass: %w", err)
	}

	cred := &Credential{User: "whep-" + user, Pass: pass, mintedAt: time.Now()}
	if err := b.router.RegisterCredential(cred.User, cred.Pass); err != nil {
		return nil, fmt.Errorf("register whep credential with router: %w", err)
	}

	b.pool = append(b.pool, cred)
	return cred, nil
}

// MarkUsed records that the router has authenticated a request with user,
// starting its post-use TTL clock.
func (b *Bridge) MarkUsed(user string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.pool {
		if c.User == user && !c.used {
			c.used = true
			c.usedAt = time.Now()
			return
		}
	}
}

// Sweep removes and revokes every expired credential. Call on a ticker.
func (b *Bridge) Sweep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictLocked(time.Now())
}

func (b *Bridge) evictLocked(now time.Time) {
	kept := b.pool[:0]
	for _, c := range b.pool {
		if now.After(c.expiresAt()) {
			b.router.RevokeCredential(c.User)
			continue
		}
		kept = append(kept, c)
	}
	b.pool = kept
}

// Size returns the current pool size, for tests and diagnostics.
func (b *Bridge) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pool)
}
