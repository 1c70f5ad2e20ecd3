// Package serial provides per-key critical sections.
package serial

import "context"

// Locker runs fn while holding the critical section for key. Calls for the
// same key never overlap; calls for different keys may.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// LockerFunc adapts a function to Locker.
type LockerFunc func(ctx context.Context, key string, fn func(context.Context) error) error

func (f LockerFunc) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	return f(ctx, key, fn)
}

// Direct runs fn without any exclusion. For single-request tools and tests.
var Direct Locker = LockerFunc(func(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
})

// Chain acquires each locker in order, releasing them in reverse.
type Chain []Locker

func (c Chain) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if len(c) == 0 {
		return fn(ctx)
	}
	return c[0].WithLock(ctx, key, func(ctx context.Context) error {
		return c[1:].WithLock(ctx, key, fn)
	})
}

func CartKey(ownerID string) string {
	return "cart:" + ownerID
}

func OrderKey(orderNumber string) string {
	return "order:" + orderNumber
}
