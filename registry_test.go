package atiende

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestResolveCreatesOnce(t *testing.T) {
	fake := newFakeAssistant("ok")
	r := NewThreadRegistry(fake)
	ctx := context.Background()

	t1, err := r.Resolve(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	t2, err := r.Resolve(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Resolve again: %v", err)
	}
	if t1 != t2 {
		t.Errorf("binding not stable: %s vs %s", t1, t2)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 binding, got %d", r.Len())
	}
}

func TestResolveWrapsCreateError(t *testing.T) {
	fake := newFakeAssistant("ok")
	fake.createThreadErr = errors.New("backend down")
	r := NewThreadRegistry(fake)

	_, err := r.Resolve(context.Background(), "conv-1")
	var tce *ErrThreadCreate
	if !errors.As(err, &tce) {
		t.Fatalf("expected ErrThreadCreate, got %v", err)
	}
}

func TestResolveLookupNotBlockedByCreate(t *testing.T) {
	fake := newFakeAssistant("ok")
	r := NewThreadRegistry(fake)
	ctx := context.Background()

	bound, err := r.Resolve(ctx, "conv-b")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Park conv-a's first resolve inside the remote thread creation.
	entered := make(chan struct{})
	release := make(chan struct{})
	fake.createThreadHook = func() {
		close(entered)
		<-release
	}
	defer close(release)
	go r.Resolve(ctx, "conv-a")
	<-entered

	// The already-bound conversation is a pure map lookup and must not wait
	// behind conv-a's in-flight creation.
	done := make(chan string, 1)
	go func() {
		got, _ := r.Resolve(ctx, "conv-b")
		done <- got
	}()
	select {
	case got := <-done:
		if got != bound {
			t.Errorf("binding changed: got %s, want %s", got, bound)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("bound lookup blocked behind another conversation's thread creation")
	}
}

func TestResolveConcurrentCreateKeepsOneBinding(t *testing.T) {
	fake := newFakeAssistant("ok")
	r := NewThreadRegistry(fake)
	ctx := context.Background()

	var entered sync.WaitGroup
	entered.Add(2)
	release := make(chan struct{})
	fake.createThreadHook = func() {
		entered.Done()
		<-release
	}

	// Two resolvers race the same unbound conversation; both reach the remote
	// call before either can insert.
	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			id, err := r.Resolve(ctx, "conv-1")
			if err != nil {
				t.Errorf("Resolve: %v", err)
			}
			results <- id
		}()
	}
	entered.Wait()
	close(release)

	first, second := <-results, <-results
	if first != second {
		t.Errorf("resolvers disagree: %s vs %s", first, second)
	}
	if bound, _ := r.Binding("conv-1"); bound != first {
		t.Errorf("binding %s does not match resolved thread %s", bound, first)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 binding, got %d", r.Len())
	}
}

func TestCompactBelowCeilingIsNoop(t *testing.T) {
	fake := newFakeAssistant("ok")
	r := NewThreadRegistry(fake, WithMaxContextMessages(5))
	ctx := context.Background()

	threadID, _ := r.Resolve(ctx, "conv-1")
	for i := 0; i < 3; i++ {
		fake.AppendMessage(ctx, threadID, "user", "hi")
	}

	got, err := r.CompactIfNeeded(ctx, threadID)
	if err != nil {
		t.Fatalf("CompactIfNeeded: %v", err)
	}
	if got != threadID {
		t.Errorf("expected unchanged thread %s, got %s", threadID, got)
	}
}

func TestCompactRebindsEveryConversation(t *testing.T) {
	fake := newFakeAssistant("ok")
	r := NewThreadRegistry(fake, WithMaxContextMessages(2))
	ctx := context.Background()

	old, _ := r.Resolve(ctx, "conv-1")
	// Several conversations sharing one thread (e.g. after a previous
	// compaction collapsed them).
	r.mu.Lock()
	r.bindings["conv-2"] = &binding{threadID: old, lastUsed: time.Now()}
	r.bindings["conv-3"] = &binding{threadID: old, lastUsed: time.Now()}
	r.mu.Unlock()

	for i := 0; i < 3; i++ {
		fake.AppendMessage(ctx, old, "user", "hi")
	}

	fresh, err := r.CompactIfNeeded(ctx, old)
	if err != nil {
		t.Fatalf("CompactIfNeeded: %v", err)
	}
	if fresh == old {
		t.Fatal("expected a fresh thread")
	}
	for _, conv := range []string{"conv-1", "conv-2", "conv-3"} {
		got, _ := r.Resolve(ctx, conv)
		if got != fresh {
			t.Errorf("%s still bound to %s, want %s", conv, got, fresh)
		}
	}
}

func TestEvictIdle(t *testing.T) {
	fake := newFakeAssistant("ok")
	r := NewThreadRegistry(fake)
	ctx := context.Background()

	r.Resolve(ctx, "stale")
	r.Resolve(ctx, "active")

	// Backdate one binding past the idle cutoff.
	r.mu.Lock()
	r.bindings["stale"].lastUsed = time.Now().Add(-2 * time.Hour)
	r.mu.Unlock()

	if got := r.EvictIdle(time.Hour); got != 1 {
		t.Errorf("EvictIdle = %d, want 1", got)
	}
	if _, ok := r.Binding("stale"); ok {
		t.Error("stale binding survived eviction")
	}
	if _, ok := r.Binding("active"); !ok {
		t.Error("active binding evicted")
	}

	// Evicted conversations get a fresh thread on the next resolve.
	if _, err := r.Resolve(ctx, "stale"); err != nil {
		t.Fatalf("Resolve after eviction: %v", err)
	}
}
