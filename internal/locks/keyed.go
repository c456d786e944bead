package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/miuvuu/miuvuu-backend/pkg/errors"
)

const (
	defaultWait       = 10 * time.Second
	defaultRetryDelay = 50 * time.Millisecond
)

// Releaser gives back a lock obtained from a Keyed locker.
type Releaser interface {
	Release(ctx context.Context) error
}

// Keyed serializes work per key, e.g. per product. Acquire blocks until the
// key is free, the wait budget runs out, or ctx is done.
type Keyed interface {
	Acquire(ctx context.Context, key string) (Releaser, error)
}

type waitObserver interface {
	ObserveLockWait(d time.Duration)
}

func contendedError(key string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "resource is being modified by another request").
		WithDetails(map[string]any{"lock": key})
}

// LocalKeyed is a keyed mutex scoped to the current process.
type LocalKeyed struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	wait    time.Duration
	metrics waitObserver
}

type localEntry struct {
	slot chan struct{}
	refs int
}

// NewLocalKeyed builds a process-local keyed locker. wait <= 0 uses the default.
func NewLocalKeyed(wait time.Duration, metrics waitObserver) *LocalKeyed {
	if wait <= 0 {
		wait = defaultWait
	}
	return &LocalKeyed{entries: make(map[string]*localEntry), wait: wait, metrics: metrics}
}

func (k *LocalKeyed) Acquire(ctx context.Context, key string) (Releaser, error) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &localEntry{slot: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	start := time.Now()
	timer := time.NewTimer(k.wait)
	defer timer.Stop()

	select {
	case entry.slot <- struct{}{}:
		observeWait(k.metrics, time.Since(start))
		return &localHandle{owner: k, key: key, entry: entry}, nil
	case <-timer.C:
		k.drop(key, entry)
		return nil, contendedError(key)
	case <-ctx.Done():
		k.drop(key, entry)
		return nil, ctx.Err()
	}
}

func (k *LocalKeyed) drop(key string, entry *localEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}

type localHandle struct {
	once  sync.Once
	owner *LocalKeyed
	key   string
	entry *localEntry
}

func (h *localHandle) Release(context.Context) error {
	h.once.Do(func() {
		<-h.entry.slot
		h.owner.drop(h.key, h.entry)
	})
	return nil
}

type keyedStore interface {
	redisStore
	LockKey(scope, id string) string
}

// RedisKeyed serializes keys across every process sharing the Redis instance.
type RedisKeyed struct {
	client     keyedStore
	scope      string
	ttl        time.Duration
	wait       time.Duration
	retryDelay time.Duration
	metrics    waitObserver
}

// RedisKeyedParams configure a RedisKeyed locker.
type RedisKeyedParams struct {
	Client  keyedStore
	Scope   string
	TTL     time.Duration
	Wait    time.Duration
	Metrics waitObserver
}

func NewRedisKeyed(params RedisKeyedParams) (*RedisKeyed, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if params.Scope == "" {
		return nil, fmt.Errorf("lock scope required")
	}
	wait := params.Wait
	if wait <= 0 {
		wait = defaultWait
	}
	return &RedisKeyed{
		client:     params.Client,
		scope:      params.Scope,
		ttl:        params.TTL,
		wait:       wait,
		retryDelay: defaultRetryDelay,
		metrics:    params.Metrics,
	}, nil
}

func (k *RedisKeyed) Acquire(ctx context.Context, key string) (Releaser, error) {
	lock, err := NewRedisLock(k.client, k.client.LockKey(k.scope, key), k.ttl)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	deadline := start.Add(k.wait)
	for {
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire lock")
		}
		if ok {
			observeWait(k.metrics, time.Since(start))
			return lock, nil
		}
		if time.Now().After(deadline) {
			return nil, contendedError(key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(k.retryDelay):
		}
	}
}

func observeWait(metrics waitObserver, d time.Duration) {
	if metrics == nil {
		return
	}
	metrics.ObserveLockWait(d)
}
