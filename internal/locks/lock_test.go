package locks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	return true, nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) LockKey(scope, id string) string { return "mv:lock:" + scope + ":" + id }

func TestRedisLockReleaseOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	store := newFakeRedis()
	first, err := NewRedisLock(store, "cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected acquire, ok=%v err=%v", ok, err)
	}

	second, _ := NewRedisLock(store, "cron", time.Minute)
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second lock must not acquire while held")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release of unowned lock should be a no-op: %v", err)
	}
	if _, err := store.Get(ctx, "cron"); err != nil {
		t.Fatal("non-owner release must not delete the key")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := store.Get(ctx, "cron"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected key removed, got %v", err)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisLock(newFakeRedis(), "", 0); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestLocalLockIsExclusive(t *testing.T) {
	lock := NewLocalLock()
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected first acquire")
	}
	if ok, _ := lock.Acquire(ctx); ok {
		t.Fatal("expected second acquire to fail")
	}
	_ = lock.Release(ctx)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestLocalKeyedSerializesSameKey(t *testing.T) {
	keyed := NewLocalKeyed(time.Second, nil)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle, err := keyed.Acquire(ctx, "product-1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			_ = handle.Release(ctx)
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxSeen)
	}
	if len(keyed.entries) != 0 {
		t.Fatalf("expected entries to be cleaned up, got %d", len(keyed.entries))
	}
}

func TestLocalKeyedDifferentKeysDoNotContend(t *testing.T) {
	keyed := NewLocalKeyed(50*time.Millisecond, nil)
	ctx := context.Background()
	a, err := keyed.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer a.Release(ctx)
	b, err := keyed.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("acquire b while a held: %v", err)
	}
	_ = b.Release(ctx)
}

func TestLocalKeyedTimesOutWithConflict(t *testing.T) {
	keyed := NewLocalKeyed(20*time.Millisecond, nil)
	ctx := context.Background()
	held, err := keyed.Acquire(ctx, "p")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Release(ctx)

	_, err = keyed.Acquire(ctx, "p")
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestLocalKeyedReleaseIsIdempotent(t *testing.T) {
	keyed := NewLocalKeyed(20*time.Millisecond, nil)
	ctx := context.Background()
	h, _ := keyed.Acquire(ctx, "p")
	_ = h.Release(ctx)
	_ = h.Release(ctx)
	h2, err := keyed.Acquire(ctx, "p")
	if err != nil {
		t.Fatalf("expected reacquire after double release: %v", err)
	}
	_ = h2.Release(ctx)
}

type recordingObserver struct{ calls int }

func (r *recordingObserver) ObserveLockWait(time.Duration) { r.calls++ }

func TestRedisKeyedWaitsThenTimesOut(t *testing.T) {
	store := newFakeRedis()
	obs := &recordingObserver{}
	keyed, err := NewRedisKeyed(RedisKeyedParams{Client: store, Scope: "product", Wait: 30 * time.Millisecond, Metrics: obs})
	if err != nil {
		t.Fatalf("new keyed: %v", err)
	}
	ctx := context.Background()
	first, err := keyed.Acquire(ctx, "p1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := store.Get(ctx, "mv:lock:product:p1"); err != nil {
		t.Fatalf("expected namespaced key to be set: %v", err)
	}
	if _, err := keyed.Acquire(ctx, "p1"); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	second, err := keyed.Acquire(ctx, "p1")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = second.Release(ctx)
	if obs.calls != 2 {
		t.Fatalf("expected 2 wait observations, got %d", obs.calls)
	}
}
