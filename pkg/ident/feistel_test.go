package ident

import (
	"math/rand"
	"testing"
)

func TestObfuscatorRequiresKey(t *testing.T) {
	if _, err := NewObfuscator(nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestObfuscatorRoundTrip(t *testing.T) {
	o, err := NewObfuscator([]byte("test-obfuscation-key"))
	if err != nil {
		t.Fatalf("NewObfuscator: %v", err)
	}
	fixed := []uint64{0, 1, 62, 1 << 32, ^uint64(0), 0x8000000000000000}
	for _, v := range fixed {
		if got := o.Deobfuscate(o.Obfuscate(v)); got != v {
			t.Errorf("round trip of %#x gave %#x", v, got)
		}
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100000; i++ {
		v := rng.Uint64()
		if got := o.Deobfuscate(o.Obfuscate(v)); got != v {
			t.Fatalf("round trip of %#x gave %#x", v, got)
		}
	}
}

func TestObfuscatorDeterministic(t *testing.T) {
	a, _ := NewObfuscator([]byte("key-one"))
	b, _ := NewObfuscator([]byte("key-one"))
	for _, v := range []uint64{0, 42, 1 << 50} {
		if a.Obfuscate(v) != b.Obfuscate(v) {
			t.Errorf("same key disagreed on %#x", v)
		}
	}
}

func TestObfuscatorKeySensitivity(t *testing.T) {
	a, _ := NewObfuscator([]byte("key-one"))
	b, _ := NewObfuscator([]byte("key-two"))
	same := 0
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		v := rng.Uint64()
		if a.Obfuscate(v) == b.Obfuscate(v) {
			same++
		}
	}
	if same > 0 {
		t.Errorf("%d of 1000 values mapped identically under different keys", same)
	}
}

func TestObfuscatorHidesOrdering(t *testing.T) {
	o, _ := NewObfuscator([]byte("ordering-key"))
	// Sequential ordinals must not come out sequential.
	ascending := 0
	prev := o.Obfuscate(0)
	for v := uint64(1); v <= 1000; v++ {
		cur := o.Obfuscate(v)
		if cur == prev+1 {
			ascending++
		}
		prev = cur
	}
	if ascending > 1 {
		t.Errorf("%d adjacent ordinals stayed adjacent after obfuscation", ascending)
	}
}
