package wallet

import (
	"testing"
	"time"
)

func newTestKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}
	return kp
}

func TestKeypairCache_PutGet(t *testing.T) {
	c := NewKeypairCache(time.Minute, time.Minute)
	defer c.Close()

	kp := newTestKeypair(t)
	c.Put(kp.Address(), kp)

	got, ok := c.Get(kp.Address())
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Address() != kp.Address() {
		t.Errorf("cached keypair address = %s, want %s", got.Address(), kp.Address())
	}

	if _, ok := c.Get("unknown"); ok {
		t.Error("expected miss for unknown address")
	}
}

func TestKeypairCache_ExpiryOnAccess(t *testing.T) {
	c := NewKeypairCache(10*time.Millisecond, time.Hour)
	defer c.Close()

	kp := newTestKeypair(t)
	c.Put(kp.Address(), kp)

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(kp.Address()); ok {
		t.Error("expected expired entry to miss")
	}
	// Lazy expiry also evicts
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expired access, want 0", c.Len())
	}
}

func TestKeypairCache_Sweep(t *testing.T) {
	c := NewKeypairCache(5*time.Millisecond, 10*time.Millisecond)
	defer c.Close()

	for i := 0; i < 3; i++ {
		kp := newTestKeypair(t)
		c.Put(kp.Address(), kp)
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}

	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after sweep, want 0", c.Len())
	}
}

func TestKeypairCache_EvictAndClear(t *testing.T) {
	c := NewKeypairCache(time.Minute, time.Minute)
	defer c.Close()

	a := newTestKeypair(t)
	b := newTestKeypair(t)
	c.Put(a.Address(), a)
	c.Put(b.Address(), b)

	c.Evict(a.Address())
	if _, ok := c.Get(a.Address()); ok {
		t.Error("evicted entry still present")
	}
	if _, ok := c.Get(b.Address()); !ok {
		t.Error("unrelated entry was evicted")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
}

func TestKeypairCache_PutRefreshesTTL(t *testing.T) {
	c := NewKeypairCache(30*time.Millisecond, time.Hour)
	defer c.Close()

	kp := newTestKeypair(t)
	c.Put(kp.Address(), kp)

	time.Sleep(20 * time.Millisecond)
	c.Put(kp.Address(), kp)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(kp.Address()); !ok {
		t.Error("re-inserted entry should still be live")
	}
}
