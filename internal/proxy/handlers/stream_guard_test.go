package handlers

import (
	"fmt"
	"testing"
	"time"
)

func TestStreamGuardRepeatedChunks(t *testing.T) {
	guard := NewStreamGuard()

	// The first call arms the hash; nine repeats after it stay under the limit.
	for i := 0; i < 10; i++ {
		if abort, _ := guard.Check([]byte("same payload")); abort {
			t.Fatalf("guard tripped on call %d", i+1)
		}
	}
	abort, reason := guard.Check([]byte("same payload"))
	if !abort {
		t.Fatal("guard should trip once a payload repeats ten consecutive times")
	}
	if reason == "" {
		t.Error("tripped guard should name a reason")
	}
}

func TestStreamGuardDistinctChunks(t *testing.T) {
	guard := NewStreamGuard()
	for i := 0; i < 100; i++ {
		if abort, reason := guard.Check([]byte(fmt.Sprintf("chunk %d", i))); abort {
			t.Fatalf("guard tripped on distinct payloads: %s", reason)
		}
	}
}

func TestStreamGuardRepeatCounterResets(t *testing.T) {
	guard := NewStreamGuard()
	for i := 0; i < 9; i++ {
		guard.Check([]byte("same"))
	}
	guard.Check([]byte("different"))
	for i := 0; i < 9; i++ {
		if abort, _ := guard.Check([]byte("same")); abort {
			t.Fatal("counter should have reset after a distinct payload")
		}
	}
}

func TestStreamGuardIgnoresEmptyPayloads(t *testing.T) {
	guard := NewStreamGuard()
	for i := 0; i < 50; i++ {
		if abort, _ := guard.Check(nil); abort {
			t.Fatal("empty payloads must not trip the repeat guard")
		}
	}
}

func TestStreamGuardStall(t *testing.T) {
	guard := NewStreamGuard()
	guard.stallLimit = 10 * time.Millisecond
	guard.Check([]byte("first"))
	time.Sleep(20 * time.Millisecond)
	abort, reason := guard.Check([]byte("second"))
	if !abort {
		t.Fatal("guard should trip after the stall limit")
	}
	if reason == "" {
		t.Error("tripped guard should name a reason")
	}
}
