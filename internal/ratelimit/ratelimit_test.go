package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_BurstThenBlocked(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 3, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("client") {
			t.Fatalf("request %d within burst rejected", i+1)
		}
	}
	if l.Allow("client") {
		t.Error("request beyond burst allowed")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100, Burst: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	if !l.Allow("client") {
		t.Fatal("first request rejected")
	}
	if l.Allow("client") {
		t.Fatal("bucket not drained")
	}

	time.Sleep(20 * time.Millisecond) // 100 rps refills within a few ms
	if !l.Allow("client") {
		t.Error("bucket did not refill")
	}
}

func TestAllow_ClientsIndependent(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	if !l.Allow("a") {
		t.Fatal("client a rejected")
	}
	if !l.Allow("b") {
		t.Error("client b throttled by client a's usage")
	}
}

func TestNew_ZeroConfigGetsDefaults(t *testing.T) {
	l := New(Config{})
	defer l.Stop()

	if l.cfg.RequestsPerSecond != DefaultConfig().RequestsPerSecond {
		t.Errorf("rps = %v", l.cfg.RequestsPerSecond)
	}
	if !l.Allow("client") {
		t.Error("default config rejects the first request")
	}
}
