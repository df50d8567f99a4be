package sleeplock

import (
	"context"
	"testing"
	"time"
)

func TestMutexExcludes(t *testing.T) {
	m := NewMutex()
	ctx := context.Background()
	if err := m.Lock(ctx); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if m.TryLock() {
		t.Fatal("expected second lock attempt to fail while held")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatal("expected lock to be available after unlock")
	}
}

func TestRwLockAllowsConcurrentReaders(t *testing.T) {
	l := NewRwLock()
	ctx := context.Background()
	if err := l.RLock(ctx); err != nil {
		t.Fatalf("rlock 1: %v", err)
	}
	if err := l.RLock(ctx); err != nil {
		t.Fatalf("rlock 2: %v", err)
	}
	l.RUnlock()
	l.RUnlock()
}

func TestRwLockWriterExcludesReaders(t *testing.T) {
	l := NewRwLock()
	ctx := context.Background()
	if err := l.Lock(ctx); err != nil {
		t.Fatalf("lock: %v", err)
	}
	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.RLock(timeout); err == nil {
		t.Fatal("expected reader to block while writer holds the lock")
	}
	l.Unlock()
}
