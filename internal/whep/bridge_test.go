package whep

import "testing"

type fakeRegistrar struct {
	registered map[string]bool
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{registered: map[string]bool{}}
}

func (f *fakeRegistrar) RegisterCredential(user, pass string) error {
	f.registered[user] = true
	return nil
}

func (f *fakeRegistrar) RevokeCredential(user string) error {
	delete(f.registered, user)
	return nil
}

func TestMintRegistersWithRouter(t *testing.T) {
	reg := newFakeRegistrar()
	b := New(reg)

	cred, err := b.Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if !reg.registered[cred.User] {
		t.Fatalf("expected credential %q to be registered with router", cred.User)
	}
}

func TestPoolEvictsOldestBeyondCap(t *testing.T) {
	reg := newFakeRegistrar()
	b := New(reg)

	for i := 0; i < maxPoolSize+3; i++ {
		if _, err := b.Mint(); err != nil {
			t.Fatalf("Mint %d: %v", i, err)
		}
	}
	if b.Size() != maxPoolSize {
		t.Fatalf("pool size = %d, want %d", b.Size(), maxPoolSize)
	}
}

func TestMarkUsedStartsUsedTTL(t *testing.T) {
	reg := newFakeRegistrar()
	b := New(reg)

	cred, _ := b.Mint()
	b.MarkUsed(cred.User)

	b.mu.Lock()
	found := false
	for _, c := range b.pool {
		if c.User == cred.User {
			found = c.used
		}
	}
	b.mu.Unlock()

	if !found {
		t.Fatalf("expected credential to be marked used")
	}
}
